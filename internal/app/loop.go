// Package app contains the top-level orchestration for the host, client
// and signal roles.
package app

import (
	"context"
	"fmt"
	"time"
)

// RunLoop calls fn rate times per second until ctx is cancelled or fn
// fails. A cancelled ctx is a clean stop and returns nil.
func RunLoop(ctx context.Context, rate int, fn func() error) error {
	if rate < 1 {
		return fmt.Errorf("tick rate must be positive, got %d", rate)
	}

	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := fn(); err != nil {
				return err
			}
		}
	}
}
