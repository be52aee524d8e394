// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianReact/services/llm"
	"github.com/AleutianAI/AleutianReact/services/reactor/datatypes"
	"golang.org/x/sync/errgroup"
)

// degradedReasoning is the fixed string recorded when a deterministic
// fallback substituted for the reasoning service.
const degradedReasoning = "automatic selection (first search result)"

const selectionPromptTemplate = `You are choosing the best reaction GIF for the %s take on this message:
%q

The search used keywords: %s

Candidates (pick one by its number):
%s
Respond with a single JSON object: {"selectedIndex": <number>, "reasoning": "<one sentence>"}`

// selectionResult is the contract-B response shape.
type selectionResult struct {
	SelectedIndex int    `json:"selectedIndex"`
	Reasoning     string `json:"reasoning"`
}

// selectBranches picks a candidate for every branch concurrently. Branches
// with no candidates never reach the reasoning service; they yield an empty
// degraded selection carrying the captured search error. The returned slice
// preserves branch order.
func (p *Pipeline) selectBranches(ctx context.Context, text string, outcomes []datatypes.BranchOutcome) []datatypes.Selection {
	ctx, span := tracer.Start(ctx, "Pipeline.selectBranches")
	defer span.End()

	selections := make([]datatypes.Selection, len(outcomes))
	var g errgroup.Group
	for i, outcome := range outcomes {
		if len(outcome.Candidates) == 0 {
			reason := "no results"
			if outcome.SearchErr != nil {
				reason = outcome.SearchErr.Error()
			}
			selections[i] = datatypes.Selection{
				Strategy:  outcome.Strategy,
				Reasoning: reason,
				Degraded:  true,
			}
			continue
		}
		g.Go(func() error {
			branchCtx, cancel := context.WithTimeout(ctx, p.selectTimeout)
			defer cancel()
			selections[i] = p.selectOne(branchCtx, text, outcome)
			return nil
		})
	}
	_ = g.Wait()
	return selections
}

// selectOne runs contract B for a single branch. Any reasoning-service
// failure, or an index outside the candidate list, degrades to the first
// candidate rather than failing the branch.
func (p *Pipeline) selectOne(ctx context.Context, text string, outcome datatypes.BranchOutcome) datatypes.Selection {
	prompt := fmt.Sprintf(selectionPromptTemplate,
		outcome.Strategy.Perspective,
		text,
		strings.Join(outcome.Strategy.Keywords, ", "),
		formatCandidates(outcome.Candidates),
	)

	raw, err := p.llm.Generate(ctx, prompt, llm.GenerationParams{JSONOutput: true})
	if err != nil {
		slog.Warn("Branch selection failed, falling back to first candidate",
			"perspective", outcome.Strategy.Perspective, "error", err)
		return fallbackSelection(outcome)
	}

	var result selectionResult
	if err := json.Unmarshal([]byte(stripJSONFences(raw)), &result); err != nil {
		slog.Warn("Unparseable selection response, falling back to first candidate",
			"perspective", outcome.Strategy.Perspective, "error", err)
		return fallbackSelection(outcome)
	}
	if result.SelectedIndex < 0 || result.SelectedIndex >= len(outcome.Candidates) {
		slog.Warn("Selection index out of range, falling back to first candidate",
			"perspective", outcome.Strategy.Perspective, "index", result.SelectedIndex)
		return fallbackSelection(outcome)
	}

	return datatypes.Selection{
		Strategy:  outcome.Strategy,
		Chosen:    &outcome.Candidates[result.SelectedIndex],
		Reasoning: result.Reasoning,
	}
}

func fallbackSelection(outcome datatypes.BranchOutcome) datatypes.Selection {
	return datatypes.Selection{
		Strategy:  outcome.Strategy,
		Chosen:    &outcome.Candidates[0],
		Reasoning: degradedReasoning,
		Degraded:  true,
	}
}

// formatCandidates renders the compact numbered listing sent to the reasoning
// service: title and alt text only, never media URLs, to bound payload size.
func formatCandidates(candidates []datatypes.Candidate) string {
	var b strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s", i, c.Title)
		if c.AltText != "" {
			fmt.Fprintf(&b, " (%s)", c.AltText)
		}
		b.WriteString("\n")
	}
	return b.String()
}
