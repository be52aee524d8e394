// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the reactor service.
//
// # Identity Flow
//
// Identity verification is an external collaborator: by the time a request
// reaches this service the bearer token, when present, is an already-verified
// opaque identity id. The middleware only dispatches on presence:
//
//	Request
//	   │
//	   ▼
//	IdentityMiddleware
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   ├─► token present  → Authenticated(token)
//	   │   token absent   → Anonymous
//	   │
//	   └─► Store Identity in context
//	           │
//	           ▼
//	       Handler (retrieves via GetIdentity)
//
// Anonymous requests are never rejected here; the quota gate and the session
// persister are the components that branch on the identity variant.
package middleware

import (
	"strings"

	"github.com/AleutianAI/AleutianReact/services/reactor/datatypes"
	"github.com/gin-gonic/gin"
)

// identityKey is the context key for storing the caller's Identity.
const identityKey = "aleutian_identity"

// SetIdentity stores the caller's identity in the Gin context.
func SetIdentity(c *gin.Context, identity datatypes.Identity) {
	c.Set(identityKey, identity)
}

// GetIdentity retrieves the caller's identity from the Gin context.
// Returns Anonymous when the middleware did not run or stored nothing.
func GetIdentity(c *gin.Context) datatypes.Identity {
	if v, exists := c.Get(identityKey); exists {
		if identity, ok := v.(datatypes.Identity); ok {
			return identity
		}
	}
	return datatypes.Anonymous()
}

// IdentityMiddleware resolves the caller's identity for every request and
// never aborts: an absent or malformed Authorization header simply yields
// an anonymous caller.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		SetIdentity(c, datatypes.Authenticated(token))
		c.Next()
	}
}

// extractBearerToken extracts the token from the Authorization header.
// Returns empty string if the header is missing or malformed. The "Bearer"
// prefix is case-insensitive per RFC 7235.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
