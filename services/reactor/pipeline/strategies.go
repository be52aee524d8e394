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
	"go.opentelemetry.io/otel/codes"
)

const strategyPromptTemplate = `You are planning GIF searches for a reaction to the message below.
Produce exactly three search strategies, one for each perspective:
- "emotional": how the message feels
- "literal": what the message literally describes
- "sarcastic": an ironic or deadpan take on the message

Message: %q

Respond with a single JSON object of the form:
{"strategies": [{"perspective": "...", "keywords": ["..."], "topic": "...", "reasoning": "..."}]}

Rules: each strategy has 1 to 3 short keywords; "topic" is optional; each of
the three perspectives appears exactly once.`

// strategyEnvelope is the wrapper shape required from the reasoning service.
type strategyEnvelope struct {
	Strategies []datatypes.Strategy `json:"strategies"`
}

// DeriveStrategies asks the reasoning service for the three search strategies.
// The response must validate against the contract: exactly 3 strategies, the
// fixed perspective set with no duplicates, 1-3 keywords each. Any violation
// or upstream error is fatal to the request.
func (p *Pipeline) DeriveStrategies(ctx context.Context, text string) ([]datatypes.Strategy, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.DeriveStrategies")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return nil, ErrInvalidInput
	}

	prompt := fmt.Sprintf(strategyPromptTemplate, text)
	raw, err := p.llm.Generate(ctx, prompt, llm.GenerationParams{JSONOutput: true})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Reasoning service failed during strategy derivation", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStrategyDerivation, err)
	}

	var envelope strategyEnvelope
	if err := json.Unmarshal([]byte(stripJSONFences(raw)), &envelope); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Failed to parse strategy response", "error", err)
		return nil, fmt.Errorf("%w: unparseable response: %v", ErrStrategyDerivation, err)
	}

	if err := p.validateStrategies(envelope.Strategies); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Strategy response violated the schema contract", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStrategyDerivation, err)
	}

	slog.Debug("Derived search strategies", "count", len(envelope.Strategies))
	return envelope.Strategies, nil
}

// validateStrategies enforces the schema contract: length exactly 3, each
// strategy structurally valid, perspectives exactly the fixed set.
func (p *Pipeline) validateStrategies(strategies []datatypes.Strategy) error {
	if len(strategies) != requestedPerspectives {
		return fmt.Errorf("expected %d strategies, got %d", requestedPerspectives, len(strategies))
	}
	seen := make(map[datatypes.Perspective]bool, requestedPerspectives)
	for i, s := range strategies {
		if err := p.validate.Struct(s); err != nil {
			return fmt.Errorf("strategy %d invalid: %v", i, err)
		}
		if seen[s.Perspective] {
			return fmt.Errorf("duplicate perspective %q", s.Perspective)
		}
		seen[s.Perspective] = true
	}
	return nil
}

// stripJSONFences removes markdown code fences some models wrap around JSON
// even in JSON mode.
func stripJSONFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
