// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists caller profiles and generation records, and
// reconstructs grouped sessions for history display.
//
// Generation records are append-only. The service never updates one; rows
// disappear only through the owner's cascading deletion, which is handled
// outside this service.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianReact/services/reactor/datatypes"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			external_id TEXT NOT NULL UNIQUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS generations (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			group_id TEXT,
			input_text TEXT NOT NULL,
			perspective TEXT NOT NULL,
			keywords TEXT NOT NULL,
			topic TEXT,
			reasoning TEXT,
			gif_url TEXT NOT NULL,
			gif_title TEXT,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_generations_owner ON generations(owner_id, created_at);`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// UpsertUser ensures a profile row exists for the opaque external identity
// and returns its internal id. Idempotent: repeated calls with the same
// external id return the same row.
func (s *Store) UpsertUser(ctx context.Context, externalID string) (string, error) {
	if externalID == "" {
		return "", fmt.Errorf("external id must not be empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, external_id) VALUES (?, ?)
		 ON CONFLICT(external_id) DO NOTHING`,
		uuid.NewString(), externalID)
	if err != nil {
		return "", fmt.Errorf("failed to upsert user: %w", err)
	}
	var id string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE external_id = ?`, externalID).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to read back user: %w", err)
	}
	return id, nil
}

// InsertGeneration appends one record. Group writes are fired concurrently by
// the caller; there is deliberately no cross-record transaction here, so a
// group can persist with fewer rows than its logical count if one write fails.
func (s *Store) InsertGeneration(ctx context.Context, rec datatypes.GenerationRecord) error {
	keywords, err := json.Marshal(rec.Keywords)
	if err != nil {
		return fmt.Errorf("failed to encode keywords: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO generations
		 (id, owner_id, group_id, input_text, perspective, keywords, topic, reasoning, gif_url, gif_title, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.OwnerID,
		nullable(rec.GroupID),
		rec.InputText,
		string(rec.Perspective),
		string(keywords),
		nullable(rec.Topic),
		rec.Reasoning,
		rec.GifURL,
		rec.GifTitle,
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert generation: %w", err)
	}
	return nil
}

// ListByOwner returns every record the owner has, newest first. History
// reconstruction regroups the flat list in memory.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]datatypes.GenerationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, group_id, input_text, perspective, keywords, topic, reasoning, gif_url, gif_title, created_at
		 FROM generations WHERE owner_id = ? ORDER BY created_at DESC, id`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query generations: %w", err)
	}
	defer rows.Close()

	var records []datatypes.GenerationRecord
	for rows.Next() {
		var (
			rec       datatypes.GenerationRecord
			groupID   sql.NullString
			topic     sql.NullString
			keywords  string
			createdAt time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &groupID, &rec.InputText,
			&rec.Perspective, &keywords, &topic, &rec.Reasoning,
			&rec.GifURL, &rec.GifTitle, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		rec.GroupID = groupID.String
		rec.Topic = topic.String
		rec.CreatedAt = createdAt
		if err := json.Unmarshal([]byte(keywords), &rec.Keywords); err != nil {
			// Keywords are display-only; a bad row should not sink
			// the whole history read.
			rec.Keywords = nil
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
