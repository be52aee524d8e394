// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/AleutianAI/AleutianReact/services/reactor/datatypes"
	"github.com/AleutianAI/AleutianReact/services/reactor/middleware"
	"github.com/AleutianAI/AleutianReact/services/reactor/store"
	"github.com/gin-gonic/gin"
)

const (
	defaultHistoryPage  = 1
	defaultHistoryLimit = 12
	maxHistoryLimit     = 50
)

// HandleHistory rebuilds and pages the caller's grouped generation history.
// Pagination counts groups, not raw records.
func HandleHistory(recordStore RecordStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleHistory")
		defer span.End()

		identity := middleware.GetIdentity(c)
		externalID, ok := identity.ExternalID()
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		page := parsePositiveInt(c.Query("page"), defaultHistoryPage)
		limit := parsePositiveInt(c.Query("limit"), defaultHistoryLimit)
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}

		ownerID, err := recordStore.UpsertUser(ctx, externalID)
		if err != nil {
			slog.Error("Failed to resolve user for history", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
			return
		}

		records, err := recordStore.ListByOwner(ctx, ownerID)
		if err != nil {
			slog.Error("Failed to read generation records", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
			return
		}

		groups := store.Reconstruct(records)
		pageGroups, pagination := store.PaginateGroups(groups, page, limit)

		c.JSON(http.StatusOK, datatypes.HistoryResponse{
			Generations: pageGroups,
			Pagination:  pagination,
		})
	}
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
