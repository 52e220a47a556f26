package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// connectAttempts bounds the startup ping loop. Compose stacks often start
// the API before Postgres or Redis accept connections.
const connectAttempts = 5

// pingWithRetry calls ping until it succeeds, doubling the wait between
// attempts from one second.
func pingWithRetry(ctx context.Context, log zerolog.Logger, what string, ping func(context.Context) error) error {
	wait := time.Second
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if err = ping(ctx); err == nil {
			return nil
		}
		if attempt == connectAttempts {
			break
		}
		log.Warn().Err(err).
			Str("target", what).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("Connection not ready, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
