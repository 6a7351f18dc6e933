// Package app wires application components and startup helpers.
//
// It provides dependency injection and application initialization,
// coordinating between the domain's core resilience components and their
// adapters.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/briskprint/printservice/internal/config"
)

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BuildReadinessChecks returns the db and public-URL reachability checks
// used by the /readyz endpoint and by the Health Monitor's public_url
// resource sampler.
func BuildReadinessChecks(cfg config.Config, pool Pinger) (
	dbCheck func(ctx context.Context) error,
	publicURLCheck func(ctx context.Context) error,
) {
	dbCheck = func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db not configured")
		}
		return pool.Ping(ctx)
	}

	publicURLCheck = func(ctx context.Context) error {
		if cfg.PublicDomain == "" {
			return fmt.Errorf("public domain not configured")
		}
		timeout := cfg.PublicURLTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client := &http.Client{Timeout: timeout}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.PublicDomain, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 200 && resp.StatusCode < 400 {
			return nil
		}
		return fmt.Errorf("public url status %d", resp.StatusCode)
	}

	return dbCheck, publicURLCheck
}
