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
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianReact/services/reactor/datatypes"
	"github.com/AleutianAI/AleutianReact/services/reactor/middleware"
	"github.com/AleutianAI/AleutianReact/services/reactor/observability"
	"github.com/AleutianAI/AleutianReact/services/reactor/pipeline"
	"github.com/AleutianAI/AleutianReact/services/reactor/quota"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.reactor.handlers")

// Generator runs the retrieval-and-selection pipeline for one input.
type Generator interface {
	Generate(ctx context.Context, text string) (*pipeline.Result, error)
}

// RecordStore is the subset of the store the handlers need.
type RecordStore interface {
	UpsertUser(ctx context.Context, externalID string) (string, error)
	InsertGeneration(ctx context.Context, rec datatypes.GenerationRecord) error
	ListByOwner(ctx context.Context, ownerID string) ([]datatypes.GenerationRecord, error)
}

type GenerateRequest struct {
	Text string `json:"text" binding:"required"`
}

// HandleGenerate is the generation operation.
//
// Order matters: the quota gate runs before strategy derivation so rejected
// requests spend no reasoning or search budget, and persistence runs after
// the response is computed so a storage failure can only cost history, never
// the result the caller already paid for.
func HandleGenerate(gen Generator, gate quota.Gate, recordStore RecordStore,
	metrics *observability.Metrics) gin.HandlerFunc {

	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleGenerate")
		defer span.End()

		var req GenerateRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
			return
		}

		identity := middleware.GetIdentity(c)

		// Identified callers pass the quota gate and get a profile row
		// before any expensive work. Anonymous callers bypass the gate:
		// they self-limit client-side, a documented trust-boundary
		// trade-off, not server enforcement.
		var rateLimit *datatypes.RateLimitInfo
		var ownerID string
		if externalID, ok := identity.ExternalID(); ok {
			decision, err := gate.Check(ctx, externalID)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				slog.Error("Quota check failed", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "quota check failed"})
				return
			}
			if !decision.Admitted {
				metrics.QuotaRejections.Inc()
				slog.Info("Request rejected by quota gate", "reset_at", decision.ResetAt)
				c.JSON(http.StatusTooManyRequests, gin.H{
					"error":     "Rate limit exceeded. Try again later.",
					"limit":     decision.Limit,
					"remaining": 0,
					"reset":     decision.ResetAt.Unix(),
				})
				return
			}
			rateLimit = &datatypes.RateLimitInfo{
				Remaining: decision.Remaining,
				Limit:     decision.Limit,
				Reset:     decision.ResetAt.Unix(),
			}

			ownerID, err = recordStore.UpsertUser(ctx, externalID)
			if err != nil {
				// The caller still gets their generation; only
				// history is lost for this request.
				slog.Error("User upsert failed, skipping persistence", "error", err)
				ownerID = ""
			}
		}

		result, err := gen.Generate(ctx, req.Text)
		if err != nil {
			metrics.GenerationsFailed.Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			switch {
			case errors.Is(err, pipeline.ErrInvalidInput):
				c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
			case errors.Is(err, pipeline.ErrNoResults):
				c.JSON(http.StatusNotFound, gin.H{
					"error": "No GIFs found for your message. Try rephrasing it.",
				})
			default:
				slog.Error("Generation failed", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "generation failed"})
			}
			return
		}

		if ownerID != "" {
			persistGroup(ctx, recordStore, metrics, ownerID, req.Text, result.Selections)
		}

		metrics.GenerationsTotal.Inc()
		c.JSON(http.StatusOK, buildGenerateResponse(result, rateLimit))
	}
}

// persistGroup writes one record per successful selection under a fresh group
// id. The writes are independent and concurrent; there is no cross-record
// transaction, so a failed write leaves a smaller group rather than rolling
// back its siblings. Failures are logged and counted, never surfaced.
func persistGroup(ctx context.Context, recordStore RecordStore, metrics *observability.Metrics,
	ownerID, inputText string, selections []datatypes.Selection) {

	groupID := uuid.NewString()
	createdAt := time.Now().UTC()

	var wg sync.WaitGroup
	for _, sel := range selections {
		rec := datatypes.GenerationRecord{
			ID:          uuid.NewString(),
			OwnerID:     ownerID,
			GroupID:     groupID,
			InputText:   inputText,
			Perspective: sel.Strategy.Perspective,
			Keywords:    sel.Strategy.Keywords,
			Topic:       sel.Strategy.Topic,
			Reasoning:   sel.Reasoning,
			GifURL:      sel.Chosen.MediaURL,
			GifTitle:    sel.Chosen.Title,
			CreatedAt:   createdAt,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := recordStore.InsertGeneration(ctx, rec); err != nil {
				metrics.PersistenceFailures.Inc()
				slog.Error("Failed to persist generation record",
					"group_id", rec.GroupID, "perspective", rec.Perspective, "error", err)
			}
		}()
	}
	wg.Wait()
}

func buildGenerateResponse(result *pipeline.Result, rateLimit *datatypes.RateLimitInfo) datatypes.GenerateResponse {
	results := make([]datatypes.ReactionResult, 0, len(result.Selections))
	for _, sel := range result.Selections {
		results = append(results, datatypes.ReactionResult{
			URL:         sel.Chosen.MediaURL,
			Keywords:    sel.Strategy.Keywords,
			Topic:       sel.Strategy.Topic,
			Reasoning:   sel.Reasoning,
			Title:       sel.Chosen.Title,
			Perspective: sel.Strategy.Perspective,
		})
	}
	return datatypes.GenerateResponse{
		Results:               results,
		TotalFound:            result.TotalFound,
		RequestedPerspectives: pipeline.RequestedPerspectives(),
		RateLimit:             rateLimit,
	}
}
