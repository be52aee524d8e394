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
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianReact/services/reactor/datatypes"
	"golang.org/x/sync/errgroup"
)

const (
	searchLimit  = 5
	searchRating = "pg-13"
)

// buildQuery joins a strategy's keywords and appends the topic when present.
func buildQuery(s datatypes.Strategy) string {
	query := strings.Join(s.Keywords, " ")
	if s.Topic != "" {
		query += " " + s.Topic
	}
	return query
}

// searchBranches runs one search per strategy concurrently. Each branch is a
// bulkhead: a timeout or upstream error is captured on that branch's outcome
// and never cancels a sibling. The returned slice always has one outcome per
// strategy, in strategy order.
func (p *Pipeline) searchBranches(ctx context.Context, strategies []datatypes.Strategy) []datatypes.BranchOutcome {
	ctx, span := tracer.Start(ctx, "Pipeline.searchBranches")
	defer span.End()

	outcomes := make([]datatypes.BranchOutcome, len(strategies))
	var g errgroup.Group
	for i, s := range strategies {
		g.Go(func() error {
			branchCtx, cancel := context.WithTimeout(ctx, p.searchTimeout)
			defer cancel()

			candidates, err := p.search.Search(branchCtx, buildQuery(s), searchLimit, searchRating)
			if err != nil {
				slog.Warn("Branch search failed", "perspective", s.Perspective, "error", err)
				outcomes[i] = datatypes.BranchOutcome{Strategy: s, SearchErr: err}
				return nil
			}
			outcomes[i] = datatypes.BranchOutcome{Strategy: s, Candidates: candidates}
			return nil
		})
	}
	// Branch errors are captured as values above; the join itself never fails.
	_ = g.Wait()
	return outcomes
}
