// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package tokenpool holds the shared session token pool. A pool is an
// immutable slice split once from the raw credential string; selection is
// random and mutates nothing, so concurrent requests share it freely.
package tokenpool

import (
	"math/rand/v2"
	"strings"

	"github.com/jimengapi/jimeng-gateway/internal/apierror"
)

// Separator joins multiple session tokens in one credential string.
const Separator = ","

// Pool is an immutable set of session tokens.
type Pool struct {
	tokens []string
}

// Parse splits a raw credential string into a pool, dropping empty entries.
func Parse(raw string) *Pool {
	var tokens []string
	for _, t := range strings.Split(raw, Separator) {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	return &Pool{tokens: tokens}
}

// Size returns the number of tokens in the pool.
func (p *Pool) Size() int { return len(p.tokens) }

// Pick selects one token uniformly at random. An exhausted pool is its own
// error class, distinct from auth failures.
func (p *Pool) Pick() (string, error) {
	if len(p.tokens) == 0 {
		return "", apierror.New(apierror.KindPoolExhausted, "no session tokens available")
	}
	return p.tokens[rand.IntN(len(p.tokens))], nil
}
