// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package apierror

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FailCodeTable classifies the upstream's history statuses and fail codes.
// The exact terminal sets are inferred from observation, so deployments can
// replace the defaults from a YAML file without a code change.
type FailCodeTable struct {
	// TerminalSuccess lists history status codes that mean the job finished
	// and its artifacts are final.
	TerminalSuccess []int `yaml:"terminal_success"`
	// TerminalFailure lists history status codes that mean the job can never
	// finish.
	TerminalFailure []int `yaml:"terminal_failure"`
	// TransientFailCodes lists fail_code values that the poller may keep
	// polling through. Any other non-empty fail_code is terminal.
	TransientFailCodes []string `yaml:"transient_fail_codes"`
	// Messages maps fail_code values to client-facing messages.
	Messages map[string]string `yaml:"messages"`
}

// DefaultFailCodeTable reflects the upstream behavior observed so far:
// status 50 is the completed state, 30 is the failed state, and fail_code
// 2038 is the content filter.
func DefaultFailCodeTable() *FailCodeTable {
	return &FailCodeTable{
		TerminalSuccess: []int{50},
		TerminalFailure: []int{30},
		Messages: map[string]string{
			"2038": "content blocked by the upstream moderation filter",
		},
	}
}

// LoadFailCodeTable reads a replacement table from path. Missing sections
// fall back to the defaults.
func LoadFailCodeTable(path string) (*FailCodeTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read fail-code table: %w", err)
	}
	t := DefaultFailCodeTable()
	if err := yaml.Unmarshal(raw, t); err != nil {
		return nil, fmt.Errorf("cannot parse fail-code table: %w", err)
	}
	return t, nil
}

// IsTerminalSuccess reports whether status is a terminal success code.
func (t *FailCodeTable) IsTerminalSuccess(status int) bool {
	for _, s := range t.TerminalSuccess {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminalFailure reports whether status is a terminal failure code.
func (t *FailCodeTable) IsTerminalFailure(status int) bool {
	for _, s := range t.TerminalFailure {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminalFailCode reports whether failCode terminates the job. An empty
// code never does; a transient code never does.
func (t *FailCodeTable) IsTerminalFailCode(failCode string) bool {
	if failCode == "" || failCode == "0" {
		return false
	}
	for _, c := range t.TransientFailCodes {
		if c == failCode {
			return false
		}
	}
	return true
}

// FailMessage renders the client-facing message for a terminal failure.
func (t *FailCodeTable) FailMessage(status int, failCode string) string {
	if msg, ok := t.Messages[failCode]; ok {
		return msg
	}
	if failCode != "" && failCode != "0" {
		return fmt.Sprintf("generation failed with code %s", failCode)
	}
	return fmt.Sprintf("generation failed with status %d", status)
}
