package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// GuardOptions configures Guard. Zero values pick the defaults noted.
type GuardOptions struct {
	Name          string
	Timeout       time.Duration // per attempt, default 60s
	RatePerMinute int           // 0 disables the limiter
	MaxRetries    int           // retries after the first attempt
	RetryDelay    time.Duration // base backoff, default 1s
	Stats         *Stats
	Log           *slog.Logger
}

// Guard wraps a Completer with a per-call timeout, a rate limiter, a
// circuit breaker and retries for transient failures. It is safe for
// concurrent use.
type Guard struct {
	next    Completer
	opts    GuardOptions
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	stats   *Stats
	log     *slog.Logger
}

func NewGuard(next Completer, opts GuardOptions) *Guard {
	if opts.Name == "" {
		opts.Name = "completion"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Stats == nil {
		opts.Stats = NewStats(time.Hour)
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	log := opts.Log.With("component", "llm_guard", "name", opts.Name)

	g := &Guard{next: next, opts: opts, stats: opts.Stats, log: log}
	if opts.RatePerMinute > 0 {
		burst := max(1, opts.RatePerMinute/10)
		g.limiter = rate.NewLimiter(rate.Limit(float64(opts.RatePerMinute)/60.0), burst)
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
		},
	})
	return g
}

// Stats exposes the latency window the guard records into.
func (g *Guard) Stats() *Stats {
	return g.stats
}

// Generate runs one completion with the guard's protections. Only
// *RetryableError failures (including a per-attempt timeout) are retried.
func (g *Guard) Generate(ctx context.Context, system, user string) (string, error) {
	var out string
	attempt := 0
	err := retry.Do(
		func() error {
			attempt++
			if g.limiter != nil {
				if err := g.limiter.Wait(ctx); err != nil {
					return err
				}
			}
			start := time.Now()
			res, err := g.breaker.Execute(func() (interface{}, error) {
				callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
				defer cancel()
				text, err := g.next.Generate(callCtx, system, user)
				if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
					return nil, &RetryableError{Message: "attempt timed out after " + g.opts.Timeout.String()}
				}
				return text, err
			})
			g.stats.Record(time.Since(start), err != nil)
			if err != nil {
				if IsRetryable(err) {
					g.log.Warn("retryable completion error", "attempt", attempt, "error", err)
				}
				return err
			}
			out = res.(string)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(g.opts.MaxRetries)+1),
		retry.Delay(g.opts.RetryDelay),
		retry.MaxJitter(g.opts.RetryDelay),
		retry.RetryIf(IsRetryable),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", err
	}
	return out, nil
}
