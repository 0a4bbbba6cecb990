// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/jimengapi/jimeng-gateway/internal/apierror"
	"github.com/jimengapi/jimeng-gateway/internal/generation"
	"github.com/jimengapi/jimeng-gateway/internal/metrics"
	"github.com/jimengapi/jimeng-gateway/internal/server"
	"github.com/jimengapi/jimeng-gateway/internal/tokenpool"
	"github.com/jimengapi/jimeng-gateway/internal/version"
)

const shutdownTimeout = 10 * time.Second

// run starts the public API server and the admin server and blocks until
// ctx is cancelled or either server fails.
func run(ctx context.Context, c cmdRun, _, stderr io.Writer) error {
	level := slog.LevelInfo
	if c.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	logger.Info("starting jmgw", "version", version.Parse(), "addr", c.Addr, "admin_port", c.AdminPort)

	failCodes := apierror.DefaultFailCodeTable()
	if c.FailCodeTable != "" {
		var err error
		if failCodes, err = apierror.LoadFailCodeTable(c.FailCodeTable); err != nil {
			return err
		}
		logger.Info("loaded fail-code table", "path", c.FailCodeTable)
	}

	registry := prometheus.NewRegistry()
	meter, shutdownMetrics, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("cannot set up metrics: %w", err)
	}
	genMetrics, err := metrics.NewGenerationMetrics(meter)
	if err != nil {
		return fmt.Errorf("cannot register instruments: %w", err)
	}

	pool := tokenpool.Parse(c.Tokens)
	if pool.Size() == 0 {
		logger.Warn("no fallback session tokens configured; every request must carry its own")
	}

	client := generation.New(generation.Options{
		Logger:                    logger,
		HTTPClient:                &http.Client{Timeout: 60 * time.Second},
		Pool:                      pool,
		FailCodes:                 failCodes,
		Metrics:                   genMetrics,
		StrictInternationalModels: c.StrictModelMap,
	})

	api := &http.Server{
		Addr:              c.Addr,
		Handler:           server.New(logger, client),
		ReadHeaderTimeout: 5 * time.Second,
	}
	adminLis, err := net.Listen("tcp", fmt.Sprintf(":%d", c.AdminPort))
	if err != nil {
		return fmt.Errorf("cannot listen on admin port %d: %w", c.AdminPort, err)
	}
	admin := startAdminServer(adminLis, logger, registry)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting api server", "addr", c.Addr)
		if err := api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		errs = append(errs, api.Shutdown(shutdownCtx))
		errs = append(errs, admin.Shutdown(shutdownCtx))
		errs = append(errs, shutdownMetrics(shutdownCtx))
		return errors.Join(errs...)
	})
	return g.Wait()
}
