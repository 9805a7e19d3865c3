// Package jobs runs the long-lived daemon: the automation trigger plus the
// relay endpoint, until the context is cancelled.
package jobs

import (
	"context"
	"time"

	"charognard/internal/logging"
)

type Scheduler interface {
	Start(ctx context.Context) error
	Stop()
	Wait()
	Next() time.Time
}

type Server interface {
	ListenAndServe(ctx context.Context) error
}

// RunDaemon arms the scheduler and serves until ctx is done. A cancelled
// context is a clean stop. It returns only after an in-flight scheduled run
// has finished.
func RunDaemon(ctx context.Context, sched Scheduler, srv Server) error {
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer func() {
		sched.Stop()
		sched.Wait()
	}()
	fields := map[string]any{}
	if next := sched.Next(); !next.IsZero() {
		fields["next_run"] = next.Format(time.RFC3339)
	}
	logging.Info("daemon_start", fields)
	err := srv.ListenAndServe(ctx)
	logging.Info("daemon_stop", nil)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
