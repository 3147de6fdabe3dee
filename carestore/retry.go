// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carestore

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const txRetryBaseDelay = 25 * time.Millisecond

// withTxRetry runs fn until it succeeds, fails with a non-retryable error, or
// maxAttempts is reached. Delays double from txRetryBaseDelay.
func withTxRetry(ctx context.Context, maxAttempts int, fn func(attempt int) error) error {
	delay := txRetryBaseDelay
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil || !isRetryablePGTxError(err) || attempt >= maxAttempts {
			return err
		}
		if err := sleepWithContext(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}
}

func isRetryablePGTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.SQLState() {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03": // lock_not_available
		return true
	default:
		return false
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sortedFilterKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
