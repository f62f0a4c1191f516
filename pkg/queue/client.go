package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
)

// Hard per-task time limits; hitting one kills the handler context and
// the job fails with the timeout kind. Archives get longer because
// extraction precedes conversion.
const (
	GeoTIFFTimeLimit = 30 * time.Minute
	ZipTimeLimit     = 60 * time.Minute
)

// MaxRetries bounds redelivery of transient failures.
const MaxRetries = 3

// Publisher enqueues pipeline tasks.
type Publisher struct {
	client *asynq.Client
}

// NewPublisher connects to the broker at brokerURL (redis:// form).
func NewPublisher(brokerURL string) (*Publisher, error) {
	opt, err := asynq.ParseRedisURI(brokerURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed parsing broker url %s", brokerURL)
	}
	return &Publisher{client: asynq.NewClient(opt)}, nil
}

func (p *Publisher) Close() error {
	return errors.Wrap(p.client.Close(), "failed closing queue client")
}

// EnqueueProcess publishes a raster ingestion job. The task id is the
// job id, so double submission of the same job id is rejected by the
// broker and cancellation needs nothing but the id.
func (p *Publisher) EnqueueProcess(ctx context.Context, taskType string, payload ProcessPayload, highPriority bool) error {
	data, err := EncodePayload(payload)
	if err != nil {
		return err
	}
	q := QueueProcessing
	if highPriority {
		q = QueueHighPriority
	}
	timeout := GeoTIFFTimeLimit
	if taskType == TypeProcessZip {
		timeout = ZipTimeLimit
	}
	_, err = p.client.EnqueueContext(ctx, asynq.NewTask(taskType, data),
		asynq.Queue(q),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(MaxRetries),
		asynq.Timeout(timeout),
	)
	return errors.Wrapf(err, "failed enqueueing %s for job %s", taskType, payload.JobID)
}

// EnqueueNotification publishes a webhook delivery on the
// notifications queue. Delivery failures retry independently of the
// job that produced them.
func (p *Publisher) EnqueueNotification(ctx context.Context, payload NotifyPayload) error {
	data, err := EncodePayload(payload)
	if err != nil {
		return err
	}
	_, err = p.client.EnqueueContext(ctx, asynq.NewTask(TypeNotify, data),
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(MaxRetries),
		asynq.Timeout(time.Minute),
	)
	return errors.Wrapf(err, "failed enqueueing notification for job %s", payload.JobID)
}

// Inspector looks into and revokes queued work.
type Inspector struct {
	ins *asynq.Inspector
}

func NewInspector(brokerURL string) (*Inspector, error) {
	opt, err := asynq.ParseRedisURI(brokerURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed parsing broker url %s", brokerURL)
	}
	return &Inspector{ins: asynq.NewInspector(opt)}, nil
}

func (i *Inspector) Close() error {
	return errors.Wrap(i.ins.Close(), "failed closing queue inspector")
}

// Revoke removes the job's task if still pending, or signals
// cancellation to the worker if it is already running. Both outcomes
// count as revoked; a task that already finished is not an error here,
// the job-row guard decides whether the cancel took.
func (i *Inspector) Revoke(jobID string) error {
	for _, q := range []string{QueueProcessing, QueueHighPriority} {
		info, err := i.ins.GetTaskInfo(q, jobID)
		if err != nil {
			continue
		}
		if info.State == asynq.TaskStatePending || info.State == asynq.TaskStateRetry || info.State == asynq.TaskStateScheduled {
			if err := i.ins.DeleteTask(q, jobID); err == nil {
				return nil
			}
		}
		if info.State == asynq.TaskStateActive {
			return errors.Wrapf(i.ins.CancelProcessing(jobID), "failed cancelling running job %s", jobID)
		}
	}
	return nil
}

// QueueStats summarizes one queue for the status endpoint.
type QueueStats struct {
	Queue     string `json:"queue"`
	Size      int    `json:"size"`
	Active    int    `json:"active"`
	Pending   int    `json:"pending"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Completed int    `json:"completed"`
}

// Stats returns per-queue depth counters.
func (i *Inspector) Stats() ([]QueueStats, error) {
	queues, err := i.ins.Queues()
	if err != nil {
		return nil, errors.Wrap(err, "failed listing queues")
	}
	out := make([]QueueStats, 0, len(queues))
	for _, q := range queues {
		qi, err := i.ins.GetQueueInfo(q)
		if err != nil {
			return nil, errors.Wrapf(err, "failed inspecting queue %s", q)
		}
		out = append(out, QueueStats{
			Queue:     q,
			Size:      qi.Size,
			Active:    qi.Active,
			Pending:   qi.Pending,
			Retry:     qi.Retry,
			Archived:  qi.Archived,
			Completed: qi.Completed,
		})
	}
	return out, nil
}

// ActiveTasks lists the job ids currently being processed.
func (i *Inspector) ActiveTasks() ([]string, error) {
	ids := []string{}
	for _, q := range []string{QueueProcessing, QueueHighPriority} {
		tasks, err := i.ins.ListActiveTasks(q)
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				continue
			}
			return nil, errors.Wrapf(err, "failed listing active tasks on %s", q)
		}
		for _, t := range tasks {
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}
