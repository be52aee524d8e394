// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline implements the multi-perspective retrieval-and-selection
// pipeline: strategy derivation, concurrent branch search, concurrent branch
// selection, and partial-failure aggregation.
//
// Failure isolation follows a bulkhead model. Strategy derivation is the one
// stage whose failure aborts the request; after that, each of the three
// branches succeeds or fails on its own, and the aggregator only fails when
// every branch came back empty.
package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/AleutianAI/AleutianReact/services/llm"
	"github.com/AleutianAI/AleutianReact/services/reactor/datatypes"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("aleutian.reactor.pipeline")

// requestedPerspectives is the fixed branch count per request.
const requestedPerspectives = 3

const (
	defaultSearchTimeout = 10 * time.Second
	defaultSelectTimeout = 20 * time.Second
)

// Searcher is the external media-search capability, one call per branch.
type Searcher interface {
	Search(ctx context.Context, query string, limit int, rating string) ([]datatypes.Candidate, error)
}

// Result is the aggregated outcome of one request: the successful selections
// in perspective-rank order. TotalFound < requestedPerspectives signals that
// one or more branches failed.
type Result struct {
	Selections []datatypes.Selection
	TotalFound int
}

// Pipeline wires the reasoning service and the search capability into the
// three-branch generation flow. Construct once at process start and share;
// all methods are safe for concurrent use.
type Pipeline struct {
	llm           llm.LLMClient
	search        Searcher
	validate      *validator.Validate
	searchTimeout time.Duration
	selectTimeout time.Duration
}

func New(llmClient llm.LLMClient, search Searcher) *Pipeline {
	return &Pipeline{
		llm:           llmClient,
		search:        search,
		validate:      validator.New(),
		searchTimeout: defaultSearchTimeout,
		selectTimeout: defaultSelectTimeout,
	}
}

// Generate runs the full pipeline for one input text.
//
// Errors: ErrInvalidInput for empty text, ErrStrategyDerivation when the
// reasoning service cannot produce a valid strategy set, ErrNoResults when
// every branch failed. Partial success is not an error.
func (p *Pipeline) Generate(ctx context.Context, text string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Generate")
	defer span.End()

	strategies, err := p.DeriveStrategies(ctx, text)
	if err != nil {
		// No branches are launched without strategies.
		return nil, err
	}

	outcomes := p.searchBranches(ctx, strategies)
	selections := p.selectBranches(ctx, text, outcomes)

	result := aggregate(selections)
	span.SetAttributes(attribute.Int("pipeline.total_found", result.TotalFound))
	if result.TotalFound == 0 {
		slog.Info("All branches failed, nothing to return", "text_len", len(text))
		return nil, ErrNoResults
	}
	if result.TotalFound < requestedPerspectives {
		slog.Warn("Partial generation", "found", result.TotalFound, "requested", requestedPerspectives)
	}
	return result, nil
}

// aggregate keeps only selections with a chosen candidate and orders them by
// perspective rank. Branches race, so completion order is meaningless here.
func aggregate(selections []datatypes.Selection) *Result {
	successful := make([]datatypes.Selection, 0, len(selections))
	for _, sel := range selections {
		if sel.Chosen != nil {
			successful = append(successful, sel)
		}
	}
	sort.SliceStable(successful, func(i, j int) bool {
		return successful[i].Strategy.Perspective.Rank() < successful[j].Strategy.Perspective.Rank()
	})
	return &Result{Selections: successful, TotalFound: len(successful)}
}

// RequestedPerspectives exposes the fixed branch count for response shaping.
func RequestedPerspectives() int {
	return requestedPerspectives
}
