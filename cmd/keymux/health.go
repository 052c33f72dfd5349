package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/keymux/internal/api"
)

// startupCheckTimeout bounds the startup health check as a whole.
const startupCheckTimeout = 10 * time.Second

// healthCheck verifies every connected service answers before devices
// are captured.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - checks: Services in startup order; disabled services are absent
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, checks []api.Check) error {
	ctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()

	for _, c := range checks {
		if err := c.Checker.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.Name, err)
		}
	}
	return nil
}
