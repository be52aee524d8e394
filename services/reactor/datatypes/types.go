// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the wire and storage types shared by the reactor
// service: search strategies, branch outcomes, selections, and the persisted
// generation records that history reconstruction reads back.
package datatypes

import "time"

// Perspective is one of the fixed analytical lenses applied to the input text.
type Perspective string

const (
	PerspectiveEmotional Perspective = "emotional"
	PerspectiveLiteral   Perspective = "literal"
	PerspectiveSarcastic Perspective = "sarcastic"
)

// Rank gives the display order for a perspective. Unknown values sort last so
// that legacy or malformed records never displace the fixed set.
func (p Perspective) Rank() int {
	switch p {
	case PerspectiveEmotional:
		return 0
	case PerspectiveLiteral:
		return 1
	case PerspectiveSarcastic:
		return 2
	default:
		return 3
	}
}

// Strategy is a perspective-tagged search plan derived from the input text.
// The validate tags mirror the schema contract with the reasoning service:
// exactly one of the fixed perspectives, one to three keywords.
type Strategy struct {
	Perspective Perspective `json:"perspective" validate:"required,oneof=emotional literal sarcastic"`
	Keywords    []string    `json:"keywords" validate:"required,min=1,max=3,dive,required"`
	Topic       string      `json:"topic,omitempty"`
	Reasoning   string      `json:"reasoning"`
}

// Candidate is one result from the external GIF search capability.
type Candidate struct {
	Title    string `json:"title"`
	AltText  string `json:"alt_text"`
	MediaURL string `json:"media_url"`
}

// BranchOutcome is the result of one branch's search. SearchErr is a captured
// value, never a propagated failure; a branch that errors still produces an
// outcome so the fan-in join always sees all branches.
type BranchOutcome struct {
	Strategy   Strategy
	Candidates []Candidate
	SearchErr  error
}

// Selection is a branch's final choice. Degraded marks outcomes where a
// deterministic fallback substituted for the reasoning service.
type Selection struct {
	Strategy  Strategy
	Chosen    *Candidate
	Reasoning string
	Degraded  bool
}

// GenerationRecord is one persisted row: a single successful selection.
// Records are append-only and owned by exactly one user. GroupID ties the
// records written from one request together; legacy rows predating grouping
// have an empty GroupID and reconstruct as singleton groups.
type GenerationRecord struct {
	ID          string      `json:"id"`
	OwnerID     string      `json:"-"`
	GroupID     string      `json:"groupId,omitempty"`
	InputText   string      `json:"inputText"`
	Perspective Perspective `json:"perspective"`
	Keywords    []string    `json:"keywords"`
	Topic       string      `json:"topic,omitempty"`
	Reasoning   string      `json:"reasoning"`
	GifURL      string      `json:"url"`
	GifTitle    string      `json:"title"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// GenerationGroup is the derived, display-side view of one request's records.
// It is reconstructed from the flat record store, never stored itself.
type GenerationGroup struct {
	GroupID   string             `json:"groupId"`
	InputText string             `json:"inputText"`
	CreatedAt time.Time          `json:"createdAt"`
	Records   []GenerationRecord `json:"gifs"`
}

// ReactionResult is one successful branch in the generation response.
type ReactionResult struct {
	URL         string      `json:"url"`
	Keywords    []string    `json:"keywords"`
	Topic       string      `json:"topic,omitempty"`
	Reasoning   string      `json:"reasoning"`
	Title       string      `json:"title"`
	Perspective Perspective `json:"perspective"`
}

// RateLimitInfo reports the caller's remaining quota alongside a successful
// generation so clients can render it without a second round trip.
type RateLimitInfo struct {
	Remaining int   `json:"remaining"`
	Limit     int   `json:"limit"`
	Reset     int64 `json:"reset"`
}

// GenerateResponse is the generation operation's success body. TotalFound may
// be less than RequestedPerspectives; that gap is the only partial-failure
// signal callers receive.
type GenerateResponse struct {
	Results               []ReactionResult `json:"results"`
	TotalFound            int              `json:"totalFound"`
	RequestedPerspectives int              `json:"requestedPerspectives"`
	RateLimit             *RateLimitInfo   `json:"rateLimit,omitempty"`
}

// Pagination describes the group-level paging of a history response.
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// HistoryResponse is the paged history body. Pagination counts groups, not
// individual records.
type HistoryResponse struct {
	Generations []GenerationGroup `json:"generations"`
	Pagination  Pagination        `json:"pagination"`
}
