// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// Identity is a tagged union over the two caller variants: anonymous callers
// and callers carrying an opaque external id. Verification of the id is an
// upstream concern; this service only dispatches on presence.
//
// Quota gating and persistence both branch on this type exhaustively rather
// than null-checking a bare string in every handler.
type Identity struct {
	externalID string
	present    bool
}

// Anonymous returns the identity of an unidentified caller.
func Anonymous() Identity {
	return Identity{}
}

// Authenticated returns the identity of a caller with the given external id.
// An empty id degenerates to Anonymous.
func Authenticated(externalID string) Identity {
	if externalID == "" {
		return Anonymous()
	}
	return Identity{externalID: externalID, present: true}
}

// ExternalID reports the caller's opaque id and whether one is present.
func (i Identity) ExternalID() (string, bool) {
	return i.externalID, i.present
}

// IsAnonymous reports whether the caller supplied no identity.
func (i Identity) IsAnonymous() bool {
	return !i.present
}
