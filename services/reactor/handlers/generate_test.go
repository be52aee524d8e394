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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianReact/services/reactor/datatypes"
	"github.com/AleutianAI/AleutianReact/services/reactor/middleware"
	"github.com/AleutianAI/AleutianReact/services/reactor/observability"
	"github.com/AleutianAI/AleutianReact/services/reactor/pipeline"
	"github.com/AleutianAI/AleutianReact/services/reactor/quota"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// mockGenerator implements Generator for handler testing.
type mockGenerator struct {
	result *pipeline.Result
	err    error
	calls  int
}

func (m *mockGenerator) Generate(ctx context.Context, text string) (*pipeline.Result, error) {
	m.calls++
	return m.result, m.err
}

// mockGate implements quota.Gate for handler testing.
type mockGate struct {
	decision quota.Decision
	err      error
	calls    int
}

func (m *mockGate) Check(ctx context.Context, key string) (quota.Decision, error) {
	m.calls++
	return m.decision, m.err
}

// mockStore implements RecordStore and collects concurrent inserts.
type mockStore struct {
	mu        sync.Mutex
	inserted  []datatypes.GenerationRecord
	upsertErr error
	insertErr error
	records   []datatypes.GenerationRecord
}

func (m *mockStore) UpsertUser(ctx context.Context, externalID string) (string, error) {
	if m.upsertErr != nil {
		return "", m.upsertErr
	}
	return "owner-" + externalID, nil
}

func (m *mockStore) InsertGeneration(ctx context.Context, rec datatypes.GenerationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, rec)
	return nil
}

func (m *mockStore) ListByOwner(ctx context.Context, ownerID string) ([]datatypes.GenerationRecord, error) {
	return m.records, nil
}

func (m *mockStore) insertedRecords() []datatypes.GenerationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]datatypes.GenerationRecord(nil), m.inserted...)
}

func testMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.NewRegistry())
}

func testSelection(p datatypes.Perspective) datatypes.Selection {
	return datatypes.Selection{
		Strategy: datatypes.Strategy{
			Perspective: p,
			Keywords:    []string{"kw"},
		},
		Chosen: &datatypes.Candidate{
			Title:    "title-" + string(p),
			MediaURL: "https://gifs.example/" + string(p),
		},
		Reasoning: "fits",
	}
}

func generateRouter(gen Generator, gate quota.Gate, recordStore RecordStore) *gin.Engine {
	router := gin.New()
	router.POST("/v1/reactions",
		middleware.IdentityMiddleware(),
		HandleGenerate(gen, gate, recordStore, testMetrics()))
	return router
}

func performGenerate(router *gin.Engine, body any, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}
	req, _ := http.NewRequest("POST", "/v1/reactions", reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// HandleGenerate Tests
// =============================================================================

func TestHandleGenerate_FullSuccess(t *testing.T) {
	gen := &mockGenerator{result: &pipeline.Result{
		Selections: []datatypes.Selection{
			testSelection(datatypes.PerspectiveEmotional),
			testSelection(datatypes.PerspectiveLiteral),
			testSelection(datatypes.PerspectiveSarcastic),
		},
		TotalFound: 3,
	}}
	gate := &mockGate{decision: quota.Decision{
		Admitted:  true,
		Limit:     10,
		Remaining: 2,
		ResetAt:   time.Now().Add(24 * time.Hour),
	}}
	recordStore := &mockStore{}

	router := generateRouter(gen, gate, recordStore)
	w := performGenerate(router, gin.H{"text": "my code finally compiled"}, "user-token")

	require.Equal(t, http.StatusOK, w.Code)
	var resp datatypes.GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Len(t, resp.Results, 3)
	assert.Equal(t, 3, resp.TotalFound)
	assert.Equal(t, 3, resp.RequestedPerspectives)
	require.NotNil(t, resp.RateLimit)
	assert.Equal(t, 2, resp.RateLimit.Remaining)

	records := recordStore.insertedRecords()
	require.Len(t, records, 3)
	groupID := records[0].GroupID
	require.NotEmpty(t, groupID)
	for _, rec := range records {
		assert.Equal(t, groupID, rec.GroupID, "all records of one request share the group id")
		assert.Equal(t, "my code finally compiled", rec.InputText)
		assert.Equal(t, records[0].CreatedAt, rec.CreatedAt, "one logical timestamp per group")
	}
}

func TestHandleGenerate_QuotaRejected(t *testing.T) {
	resetAt := time.Now().Add(3 * time.Hour)
	gen := &mockGenerator{}
	gate := &mockGate{decision: quota.Decision{Admitted: false, Limit: 10, ResetAt: resetAt}}
	recordStore := &mockStore{}

	router := generateRouter(gen, gate, recordStore)
	w := performGenerate(router, gin.H{"text": "hello"}, "user-token")

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(10), body["limit"])
	assert.Equal(t, float64(0), body["remaining"])
	assert.Equal(t, float64(resetAt.Unix()), body["reset"])

	assert.Equal(t, 0, gen.calls, "no expensive work after a quota rejection")
	assert.Empty(t, recordStore.insertedRecords())
}

func TestHandleGenerate_AnonymousBypassesGateAndPersistence(t *testing.T) {
	gen := &mockGenerator{result: &pipeline.Result{
		Selections: []datatypes.Selection{testSelection(datatypes.PerspectiveEmotional)},
		TotalFound: 1,
	}}
	gate := &mockGate{}
	recordStore := &mockStore{}

	router := generateRouter(gen, gate, recordStore)
	w := performGenerate(router, gin.H{"text": "hello"}, "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp datatypes.GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Nil(t, resp.RateLimit)
	assert.Equal(t, 0, gate.calls, "anonymous callers are not gated server-side")
	assert.Empty(t, recordStore.insertedRecords(), "anonymous requests are never persisted")
}

func TestHandleGenerate_PartialSuccessPersistsSmallerGroup(t *testing.T) {
	gen := &mockGenerator{result: &pipeline.Result{
		Selections: []datatypes.Selection{
			testSelection(datatypes.PerspectiveEmotional),
			testSelection(datatypes.PerspectiveLiteral),
		},
		TotalFound: 2,
	}}
	gate := &mockGate{decision: quota.Decision{Admitted: true, Limit: 10, Remaining: 5, ResetAt: time.Now()}}
	recordStore := &mockStore{}

	router := generateRouter(gen, gate, recordStore)
	w := performGenerate(router, gin.H{"text": "hello"}, "user-token")

	require.Equal(t, http.StatusOK, w.Code)
	var resp datatypes.GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 2, resp.TotalFound)
	assert.Equal(t, 3, resp.RequestedPerspectives)
	for _, r := range resp.Results {
		assert.NotEqual(t, datatypes.PerspectiveSarcastic, r.Perspective)
	}
	assert.Len(t, recordStore.insertedRecords(), 2)
}

func TestHandleGenerate_NoResults(t *testing.T) {
	gen := &mockGenerator{err: pipeline.ErrNoResults}
	gate := &mockGate{decision: quota.Decision{Admitted: true, Limit: 10, Remaining: 5, ResetAt: time.Now()}}
	recordStore := &mockStore{}

	router := generateRouter(gen, gate, recordStore)
	w := performGenerate(router, gin.H{"text": "zero matches"}, "user-token")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, recordStore.insertedRecords(), "total failure persists nothing")
}

func TestHandleGenerate_EmptyText(t *testing.T) {
	gen := &mockGenerator{}
	gate := &mockGate{}
	router := generateRouter(gen, gate, &mockStore{})

	for _, body := range []any{gin.H{"text": ""}, gin.H{"text": "   "}, gin.H{}} {
		w := performGenerate(router, body, "user-token")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
	assert.Equal(t, 0, gen.calls)
	assert.Equal(t, 0, gate.calls, "invalid input is rejected before the quota check")
}

func TestHandleGenerate_StrategyDerivationFails(t *testing.T) {
	gen := &mockGenerator{err: pipeline.ErrStrategyDerivation}
	gate := &mockGate{decision: quota.Decision{Admitted: true, Limit: 10, Remaining: 5, ResetAt: time.Now()}}

	router := generateRouter(gen, gate, &mockStore{})
	w := performGenerate(router, gin.H{"text": "hello"}, "user-token")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleGenerate_PersistenceFailureDoesNotRevokeResponse(t *testing.T) {
	gen := &mockGenerator{result: &pipeline.Result{
		Selections: []datatypes.Selection{testSelection(datatypes.PerspectiveEmotional)},
		TotalFound: 1,
	}}
	gate := &mockGate{decision: quota.Decision{Admitted: true, Limit: 10, Remaining: 5, ResetAt: time.Now()}}
	recordStore := &mockStore{insertErr: errors.New("disk full")}

	router := generateRouter(gen, gate, recordStore)
	w := performGenerate(router, gin.H{"text": "hello"}, "user-token")

	require.Equal(t, http.StatusOK, w.Code)
	var resp datatypes.GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.TotalFound, "the caller keeps their result even when storage fails")
}

func TestHandleGenerate_UpsertFailureSkipsPersistenceOnly(t *testing.T) {
	gen := &mockGenerator{result: &pipeline.Result{
		Selections: []datatypes.Selection{testSelection(datatypes.PerspectiveEmotional)},
		TotalFound: 1,
	}}
	gate := &mockGate{decision: quota.Decision{Admitted: true, Limit: 10, Remaining: 5, ResetAt: time.Now()}}
	recordStore := &mockStore{upsertErr: errors.New("db unreachable")}

	router := generateRouter(gen, gate, recordStore)
	w := performGenerate(router, gin.H{"text": "hello"}, "user-token")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, recordStore.insertedRecords())
}

func TestHandleGenerate_GateErrorIsServerError(t *testing.T) {
	gen := &mockGenerator{}
	gate := &mockGate{err: errors.New("quota store down")}

	router := generateRouter(gen, gate, &mockStore{})
	w := performGenerate(router, gin.H{"text": "hello"}, "user-token")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 0, gen.calls)
}
