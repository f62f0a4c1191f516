package queue

import (
	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
)

// NewScheduler registers the periodic housekeeping tasks: an hourly
// cleanup pass on the cleanup queue and a statistics refresh every five
// minutes on the default queue.
func NewScheduler(brokerURL string) (*asynq.Scheduler, error) {
	opt, err := asynq.ParseRedisURI(brokerURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed parsing broker url %s", brokerURL)
	}
	sched := asynq.NewScheduler(opt, nil)

	if _, err := sched.Register("@every 1h",
		asynq.NewTask(TypeCleanup, nil),
		asynq.Queue(QueueCleanup),
	); err != nil {
		return nil, errors.Wrap(err, "failed registering cleanup schedule")
	}
	if _, err := sched.Register("@every 5m",
		asynq.NewTask(TypeStatistics, nil),
		asynq.Queue(QueueDefault),
	); err != nil {
		return nil, errors.Wrap(err, "failed registering statistics schedule")
	}
	return sched, nil
}
