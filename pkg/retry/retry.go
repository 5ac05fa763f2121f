// Package retry wraps a fallible operation with a bounded number of retries
// separated by a fixed backoff, logging each attempt.
package retry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/treesync/treesync/pkg/logging"
	"github.com/treesync/treesync/pkg/stats"
)

// Config holds the retry budget: up to MaxRetries additional attempts after
// the first, each separated by WaitSeconds of sleep.
type Config struct {
	MaxRetries  uint
	WaitSeconds uint
}

// ShouldRetry reports whether c's configuration permits any retry at all.
func (c Config) ShouldRetry() bool {
	return c.MaxRetries > 0
}

// Do executes operation, retrying on failure up to config.MaxRetries
// additional times with a config.WaitSeconds sleep between attempts.
// description names the operation for logging. Retries are unconditional:
// every failure short of exhaustion is retried regardless of error class.
// runStats, if non-nil, records a single deduplicated warning for a
// retry-then-success outcome, in addition to the per-attempt log line.
func Do(ctx context.Context, config Config, description string, logger *logging.Logger, runStats *stats.Stats, operation func() error) error {
	var lastErr error
	for attempt := uint(0); attempt <= config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 0 {
				logger.Printf("%s succeeded after %d retries", description, attempt)
				if runStats != nil {
					runStats.Warn(fmt.Sprintf("%s succeeded after %d retries", description, attempt))
				}
			}
			return nil
		}

		if attempt < config.MaxRetries {
			kind := "non-transient"
			if Classify(lastErr) {
				kind = "transient"
			}
			logger.Printf("%s failed (attempt %d/%d, %s): %v. Retrying in %d seconds...",
				description, attempt+1, config.MaxRetries+1, kind, lastErr, config.WaitSeconds)

			select {
			case <-time.After(time.Duration(config.WaitSeconds) * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if !config.ShouldRetry() {
		return errors.Wrap(lastErr, description)
	}
	return errors.Wrapf(lastErr, "%s failed after %d retries", description, config.MaxRetries)
}

// Classify reports whether err looks like a transient condition worth
// retrying, based on string/kind sniffing of common transient I/O errors.
// Do uses it only to label each retry log line as transient or
// non-transient; it never gates a retry, and Do retries every failure
// regardless of this classification.
func Classify(err error) bool {
	if err == nil {
		return false
	}

	message := strings.ToLower(err.Error())
	transientSubstrings := []string{
		"permission denied",
		"access is denied",
		"sharing violation",
		"resource temporarily unavailable",
		"too many open files",
		"device or resource busy",
		"connection refused",
		"connection reset",
		"timeout",
		"network unreachable",
	}
	for _, substring := range transientSubstrings {
		if strings.Contains(message, substring) {
			return true
		}
	}

	return errors.Is(err, context.DeadlineExceeded)
}
