// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package quota gates identified callers behind a sliding-window rate limit.
//
// State lives in BadgerDB so the window survives restarts. Each check is a
// single Badger read-modify-write transaction, which gives the atomic
// check-and-increment the rest of the service assumes.
package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	// DefaultLimit is the per-identity capacity of the window.
	DefaultLimit = 10
	// DefaultWindow is the trailing interval the limit applies to.
	DefaultWindow = 24 * time.Hour

	keyPrefix = "quota:"
)

// Decision is the gate's verdict for one request.
type Decision struct {
	Admitted  bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Gate admits or rejects a request for an identity key before any expensive
// work runs.
type Gate interface {
	Check(ctx context.Context, key string) (Decision, error)
}

// BadgerGate implements Gate with per-key timestamp lists in BadgerDB.
type BadgerGate struct {
	db     *badger.DB
	limit  int
	window time.Duration
	now    func() time.Time // injectable for tests
}

func NewBadgerGate(db *badger.DB, limit int, window time.Duration) *BadgerGate {
	return &BadgerGate{
		db:     db,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Open opens the Badger database backing the gate. Pass an empty dir for an
// in-memory instance (tests).
func Open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	// Badger's own logging is too chatty for a request-path store.
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open quota store: %w", err)
	}
	slog.Info("Opened quota store", "dir", dir, "in_memory", dir == "")
	return db, nil
}

// Check prunes the caller's window, then either records the new request or
// rejects it. On admit, Remaining reflects the capacity left after this
// request; ResetAt is when the oldest counted request leaves the window.
func (g *BadgerGate) Check(ctx context.Context, key string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	now := g.now()
	cutoff := now.Add(-g.window)
	var decision Decision

	err := g.db.Update(func(txn *badger.Txn) error {
		storageKey := []byte(keyPrefix + key)

		var stamps []int64
		item, err := txn.Get(storageKey)
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &stamps)
			}); err != nil {
				// A corrupt entry resets the window rather than
				// locking the caller out permanently.
				slog.Error("Corrupt quota entry, resetting window", "key", key, "error", err)
				stamps = nil
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			// First request in the window.
		default:
			return err
		}

		pruned := stamps[:0]
		for _, ts := range stamps {
			if time.UnixMilli(ts).After(cutoff) {
				pruned = append(pruned, ts)
			}
		}

		if len(pruned) >= g.limit {
			decision = Decision{
				Admitted:  false,
				Limit:     g.limit,
				Remaining: 0,
				ResetAt:   time.UnixMilli(pruned[0]).Add(g.window),
			}
			return nil
		}

		pruned = append(pruned, now.UnixMilli())
		val, err := json.Marshal(pruned)
		if err != nil {
			return err
		}
		entry := badger.NewEntry(storageKey, val).WithTTL(g.window)
		if err := txn.SetEntry(entry); err != nil {
			return err
		}

		decision = Decision{
			Admitted:  true,
			Limit:     g.limit,
			Remaining: g.limit - len(pruned),
			ResetAt:   time.UnixMilli(pruned[0]).Add(g.window),
		}
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("quota check failed: %w", err)
	}
	return decision, nil
}
