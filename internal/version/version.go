// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package version

import (
	"fmt"
	"strconv"
	"strings"
)

// version is the current version of the build. This is populated by the Go
// linker from the git describe output.
var version string

// Current returns the version with its Git information.
func Current() Git {
	return parseGit(version)
}

// Parse returns the rendered version string.
func Parse() string {
	return Current().String()
}

// Git is the version information extracted from a git describe label.
type Git struct {
	ClosestTag   string
	CommitsAhead int
	Sha          string
}

func (g Git) String() string {
	switch {
	case g == Git{}:
		// unofficial build without the make tooling
		return "dev"
	case g.CommitsAhead != 0:
		return fmt.Sprintf("%s (%s, +%d)", g.Sha, g.ClosestTag, g.CommitsAhead)
	default:
		return g.ClosestTag
	}
}

// parseGit parses a version string of the form
//
//	<release tag>-<commits since release tag>-g<commit hash>
func parseGit(v string) Git {
	parts := strings.Split(v, "-")
	l := len(parts)
	if l < 3 {
		return Git{}
	}
	// The tag itself may contain '-' characters, so parse from the end and
	// rejoin the leading parts.
	commits, err := strconv.Atoi(parts[l-2])
	if err != nil {
		return Git{}
	}
	return Git{
		ClosestTag:   strings.Join(parts[:l-2], "-"),
		CommitsAhead: commits,
		Sha:          strings.TrimPrefix(parts[l-1], "g"),
	}
}
