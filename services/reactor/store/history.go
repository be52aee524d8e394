// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"sort"

	"github.com/AleutianAI/AleutianReact/services/reactor/datatypes"
)

// Reconstruct rebuilds logical sessions from a flat record list.
//
// Records sharing a group id form one group. Legacy records written before
// grouping existed have no group id and become singleton groups keyed by
// their own record id. Within a group, records sort by perspective rank;
// groups sort by their newest record's timestamp, descending.
func Reconstruct(records []datatypes.GenerationRecord) []datatypes.GenerationGroup {
	byKey := make(map[string]*datatypes.GenerationGroup)
	order := make([]string, 0, len(records))

	for _, rec := range records {
		key := rec.GroupID
		if key == "" {
			key = rec.ID
		}
		group, ok := byKey[key]
		if !ok {
			group = &datatypes.GenerationGroup{
				GroupID:   key,
				InputText: rec.InputText,
				CreatedAt: rec.CreatedAt,
			}
			byKey[key] = group
			order = append(order, key)
		}
		group.Records = append(group.Records, rec)
		// The representative timestamp is the newest record's.
		if rec.CreatedAt.After(group.CreatedAt) {
			group.CreatedAt = rec.CreatedAt
		}
	}

	groups := make([]datatypes.GenerationGroup, 0, len(order))
	for _, key := range order {
		group := byKey[key]
		sort.SliceStable(group.Records, func(i, j int) bool {
			return group.Records[i].Perspective.Rank() < group.Records[j].Perspective.Rank()
		})
		groups = append(groups, *group)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].CreatedAt.After(groups[j].CreatedAt)
	})
	return groups
}

// PaginateGroups pages over the group sequence, not the raw records.
// Page numbering starts at 1; an out-of-range page yields an empty slice.
func PaginateGroups(groups []datatypes.GenerationGroup, page, limit int) ([]datatypes.GenerationGroup, datatypes.Pagination) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	total := len(groups)
	totalPages := (total + limit - 1) / limit

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return groups[start:end], datatypes.Pagination{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}
}
