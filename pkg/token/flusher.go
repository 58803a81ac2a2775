package token

import (
	"context"
	"log/slog"
	"time"

	sferr "github.com/secretforge/secretforge-core/pkg/errors"
	"github.com/secretforge/secretforge-core/pkg/store"
)

// DefaultFlushInterval is how often the flusher reconciles cached counts
// into durable storage when no interval is configured.
const DefaultFlushInterval = 30 * time.Second

// Flusher periodically writes the usage counter's cached counts back to
// the durable token rows. Flushing is idempotent: the store applies counts
// with a never-decrease rule, so replayed or out-of-order flushes are
// harmless.
type Flusher struct {
	counter  *UsageCounter
	tokens   store.AccessTokenStore
	interval time.Duration
	logger   *slog.Logger
}

// NewFlusher creates a flusher reconciling counter state into the given
// token store. A zero interval uses [DefaultFlushInterval]; a nil logger
// uses the default slog logger.
func NewFlusher(counter *UsageCounter, tokens store.AccessTokenStore, interval time.Duration, logger *slog.Logger) *Flusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Flusher{
		counter:  counter,
		tokens:   tokens,
		interval: interval,
		logger:   logger,
	}
}

// Run flushes on every interval tick until ctx is canceled, then performs
// one final flush so shutdown does not drop recorded uses.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final flush on a fresh context; the loop context is gone.
			flushCtx, cancel := context.WithTimeout(context.Background(), f.interval)
			f.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			f.Flush(ctx)
		}
	}
}

// Flush reconciles every dirty token's cached count into its durable row.
// Tokens whose row is gone are dropped from the counter; transient
// failures are logged and retried on the next flush.
func (f *Flusher) Flush(ctx context.Context) {
	for _, id := range f.counter.takeDirty() {
		count, primed, err := f.counter.CachedUses(ctx, id)
		if err != nil {
			f.logger.WarnContext(ctx, "usage counter read failed, will retry",
				slog.String("token_id", id), slog.Any("error", err))
			f.counter.remark(id)
			continue
		}
		if !primed {
			// Counter evicted between increment and flush; nothing to
			// reconcile.
			continue
		}

		switch err := f.tokens.SetAccessTokenUses(ctx, id, count); {
		case err == nil:
		case sferr.IsNotFound(err):
			// Token row already deleted; drop its counter state.
			if forgetErr := f.counter.Forget(ctx, id); forgetErr != nil {
				f.logger.WarnContext(ctx, "failed to drop counter for deleted token",
					slog.String("token_id", id), slog.Any("error", forgetErr))
			}
		default:
			f.logger.WarnContext(ctx, "usage counter flush failed, will retry",
				slog.String("token_id", id), slog.Any("error", err))
			f.counter.remark(id)
		}
	}
}
