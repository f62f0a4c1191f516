package queue

import (
	"context"
	"math"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/SERDSDDAM/SurpadClone/pkg/pipeline"
)

// NewServer builds the worker runtime. Concurrency stays low because a
// single warp can saturate a core and hundreds of MB of RAM; the queue
// weights let urgent work overtake the backlog without starving
// housekeeping. A non-empty queueNames restricts the worker to those
// queues, which is how housekeeping gets isolated onto its own process.
func NewServer(brokerURL string, concurrency int, queueNames []string, log zerolog.Logger) (*asynq.Server, error) {
	opt, err := asynq.ParseRedisURI(brokerURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed parsing broker url %s", brokerURL)
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	queues := Priorities
	if len(queueNames) > 0 {
		queues = map[string]int{}
		for _, q := range queueNames {
			w, ok := Priorities[q]
			if !ok {
				return nil, errors.Errorf("unknown queue %q", q)
			}
			queues[q] = w
		}
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
		RetryDelayFunc: func(n int, err error, t *asynq.Task) time.Duration {
			return time.Duration(60*math.Pow(2, float64(n))) * time.Second
		},
		IsFailure: func(err error) bool {
			return pipeline.KindOf(err) != pipeline.KindCancelled
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error().
				Err(err).
				Str("task", task.Type()).
				Str("error_kind", string(pipeline.KindOf(err))).
				Msg("task failed")
		}),
	})
	return srv, nil
}

// Per-task-type rate limits, tokens per second.
var taskRates = map[string]rate.Limit{
	TypeProcessGeoTIFF: 5,
	TypeProcessZip:     3,
}

const defaultTaskRate rate.Limit = 10

// RateLimit returns middleware that throttles task starts per type.
// Limiters are shared across queues, so a burst on high_priority still
// respects the same ceiling.
func RateLimit() asynq.MiddlewareFunc {
	limiters := map[string]*rate.Limiter{}
	for t, r := range taskRates {
		limiters[t] = rate.NewLimiter(r, 1)
	}
	fallback := rate.NewLimiter(defaultTaskRate, 1)

	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			lim, ok := limiters[t.Type()]
			if !ok {
				lim = fallback
			}
			if err := lim.Wait(ctx); err != nil {
				return pipeline.Cancelled()
			}
			return next.ProcessTask(ctx, t)
		})
	}
}

// NewMux wires the task handlers behind the rate limiter.
func NewMux(h *Handlers) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(RateLimit())
	mux.HandleFunc(TypeProcessGeoTIFF, h.HandleProcessGeoTIFF)
	mux.HandleFunc(TypeProcessZip, h.HandleProcessZip)
	mux.HandleFunc(TypeCleanup, h.HandleCleanup)
	mux.HandleFunc(TypeStatistics, h.HandleStatistics)
	mux.HandleFunc(TypeNotify, h.HandleNotify)
	return mux
}
