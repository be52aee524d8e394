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

import "errors"

// Stage-gating errors escalate to the caller; branch-local failures never do.
var (
	// ErrInvalidInput rejects empty or whitespace-only text before any
	// external call is made.
	ErrInvalidInput = errors.New("input text must not be empty")

	// ErrStrategyDerivation aborts the whole request. There is no fallback
	// strategy set: downstream stages have nothing to search without one.
	ErrStrategyDerivation = errors.New("strategy derivation failed")

	// ErrNoResults means every branch came back empty. Nothing is
	// persisted and no partial response is produced.
	ErrNoResults = errors.New("no GIFs found for any perspective")
)
