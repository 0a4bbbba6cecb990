// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package session declares the contract for minting fresh session tokens.
// The production implementation drives a browser registration flow and
// lives outside this module; the gateway consumes it as an opaque factory.
package session

import (
	"context"

	"github.com/jimengapi/jimeng-gateway/internal/apierror"
)

// Provider issues a fresh session token. Implementations must return a
// token that satisfies the session token constraints: non-empty, with any
// region prefix drawn from the closed region set.
type Provider interface {
	GenerateSession(ctx context.Context) (string, error)
}

// Unavailable is the Provider used when no provisioning backend is
// configured. Every call fails with the provisioning error kind.
type Unavailable struct{}

// GenerateSession implements [Provider].
func (Unavailable) GenerateSession(context.Context) (string, error) {
	return "", apierror.New(apierror.KindProvisioning, "no session provider is configured")
}
