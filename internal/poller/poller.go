// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package poller drives the adaptive polling loop against the history
// endpoint. The upstream exposes no push channel and produces artifacts
// progressively, so the loop widens its interval while nothing changes and
// snaps back on progress. The tick closure is synchronous; the loop owns
// time.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/jimengapi/jimeng-gateway/internal/apierror"
)

// Type selects the per-mode default configuration.
type Type string

const (
	TypeImage Type = "image"
	TypeVideo Type = "video"
)

// Status is the per-tick snapshot handed back by the tick closure.
type Status struct {
	Status     int
	FailCode   string
	ItemCount  int
	FinishTime int64
	HistoryID  string
}

// Tick performs one history fetch. data is the raw task payload carried
// through to the result untouched.
type Tick func(ctx context.Context) (Status, any, error)

// Result is the terminal outcome of a poll.
type Result struct {
	Status  Status
	Elapsed time.Duration
	Ticks   int
	Data    any
}

// Config bounds one polling loop.
type Config struct {
	Type              Type
	MaxPollCount      int
	ExpectedItemCount int
	// InitialInterval is the starting wait between ticks.
	InitialInterval time.Duration
	// MaxInterval caps the widened wait.
	MaxInterval time.Duration
	// WidenStep is added to the interval once the item count has been flat
	// for WidenAfter consecutive ticks.
	WidenStep  time.Duration
	WidenAfter int
	// StallTicks is how many progress-free ticks are tolerated while
	// finish_time is still zero.
	StallTicks int
	// MaxTransportErrors bounds consecutive transport faults; terminal
	// upstream errors are never retried.
	MaxTransportErrors int

	FailCodes *apierror.FailCodeTable
	Logger    *slog.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewConfig returns the per-mode defaults.
func NewConfig(t Type, expectedItemCount int) Config {
	cfg := Config{
		Type:               t,
		MaxPollCount:       60,
		ExpectedItemCount:  expectedItemCount,
		InitialInterval:    2 * time.Second,
		MaxInterval:        10 * time.Second,
		WidenStep:          time.Second,
		WidenAfter:         3,
		StallTicks:         15,
		MaxTransportErrors: 3,
		FailCodes:          apierror.DefaultFailCodeTable(),
		Logger:             slog.Default(),
	}
	if t == TypeVideo {
		// Video jobs run far longer than image jobs.
		cfg.MaxPollCount = 120
		cfg.StallTicks = 40
	}
	return cfg
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Poll runs the loop until a terminal condition. It always terminates
// within MaxPollCount ticks.
func Poll(ctx context.Context, cfg Config, tick Tick) (*Result, error) {
	if cfg.FailCodes == nil {
		cfg.FailCodes = apierror.DefaultFailCodeTable()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	sleep := cfg.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	start := time.Now()
	interval := cfg.InitialInterval
	lastItemCount := 0
	flatTicks := 0
	transportErrs := 0

	for i := 0; i < cfg.MaxPollCount; i++ {
		if i > 0 {
			if err := sleep(ctx, interval); err != nil {
				return nil, apierror.Wrap(apierror.KindTransport, err, "polling cancelled")
			}
		}

		st, data, err := tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, apierror.Wrap(apierror.KindTransport, err, "polling cancelled")
			}
			transportErrs++
			if transportErrs > cfg.MaxTransportErrors {
				return nil, apierror.Wrap(apierror.KindTransport, err, "history fetch failed %d times in a row", transportErrs)
			}
			cfg.Logger.Warn("history fetch failed, retrying", "attempt", i+1, "err", err)
			continue
		}
		transportErrs = 0
		cfg.Logger.Debug("poll tick",
			"history_id", st.HistoryID, "status", st.Status, "items", st.ItemCount, "finish_time", st.FinishTime)

		// Terminal upstream failures are never retried.
		if cfg.FailCodes.IsTerminalFailure(st.Status) || cfg.FailCodes.IsTerminalFailCode(st.FailCode) {
			return nil, apierror.New(apierror.KindPollRemote, "%s", cfg.FailCodes.FailMessage(st.Status, st.FailCode))
		}

		// Item counts only ever grow; a shrink means the history record was
		// replaced underneath us.
		if st.ItemCount < lastItemCount {
			return nil, apierror.New(apierror.KindPollRemote,
				"item count went backwards (%d -> %d) for history %s", lastItemCount, st.ItemCount, st.HistoryID)
		}

		if cfg.FailCodes.IsTerminalSuccess(st.Status) &&
			(st.ItemCount >= cfg.ExpectedItemCount || st.FinishTime > 0) {
			return &Result{Status: st, Elapsed: time.Since(start), Ticks: i + 1, Data: data}, nil
		}

		if st.ItemCount > lastItemCount {
			lastItemCount = st.ItemCount
			flatTicks = 0
			interval = cfg.InitialInterval
		} else {
			flatTicks++
			if flatTicks > cfg.StallTicks && st.FinishTime == 0 {
				return nil, apierror.New(apierror.KindPollStall,
					"no progress after %d ticks for history %s", flatTicks, st.HistoryID)
			}
			if flatTicks >= cfg.WidenAfter && interval < cfg.MaxInterval {
				interval += cfg.WidenStep
				if interval > cfg.MaxInterval {
					interval = cfg.MaxInterval
				}
			}
		}
	}
	return nil, apierror.New(apierror.KindPollTimeout, "generation did not finish within %d polls", cfg.MaxPollCount)
}
