package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix  = "task:"
	pendingKey    = "task_queue:pending"
	processingKey = "task_queue:processing"
	statsKey      = "task_queue:stats"

	jobTTL          = 24 * time.Hour
	completedJobTTL = time.Hour
	dequeueTimeout  = 5 * time.Second

	defaultMaxRetries = 3
	retryBaseDelay    = 10 * time.Second
)

// Handlers holds the task executors the queue dispatches to.
type Handlers struct {
	Activator Activator
	History   HistoryRecorder
	Notifier  Notifier
	Sweeper   RecoverySweeper
}

// Activator applies a completed payment to the user's subscription.
type Activator interface {
	Activate(ctx context.Context, paymentID string) error
}

// HistoryRecorder persists a payment history entry with an external service.
type HistoryRecorder interface {
	Record(ctx context.Context, entry HistoryPayload) error
}

// Notifier informs the user about the outcome of a payment.
type Notifier interface {
	Notify(ctx context.Context, userID uint, paymentID, status string) error
}

// RecoverySweeper re-checks stale pending payments against the provider APIs.
type RecoverySweeper interface {
	SweepOnce(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// Queue is a Redis backed task queue for payment side effects
type Queue struct {
	client   *redis.Client
	handlers Handlers
	workers  int
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

func NewQueue(client *redis.Client, handlers Handlers, workers int) *Queue {
	if workers <= 0 {
		workers = 2
	}
	return &Queue{
		client:   client,
		handlers: handlers,
		workers:  workers,
		stopCh:   make(chan struct{}),
	}
}

// SetHandlers replaces the task executors. Must be called before Start; the
// recovery sweeper can only be built after the queue exists because the
// processor dispatches into the same queue.
func (q *Queue) SetHandlers(handlers Handlers) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = handlers
}

// EnqueueJob stores a job and pushes its ID onto the pending list
func (q *Queue) EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error) {
	job := &Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  time.Now(),
		MaxRetries: defaultMaxRetries,
	}

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.Pipeline()
	pipe.Set(ctx, jobKeyPrefix+job.ID, data, jobTTL)
	pipe.LPush(ctx, pendingKey, job.ID)
	pipe.HIncrBy(ctx, statsKey, "enqueued", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Debugf("[JobQueue] Enqueued job %s type=%s", job.ID, job.Type)
	return job, nil
}

// Start launches the worker goroutines
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	log.Infof("[JobQueue] Started %d workers", q.workers)
}

// Stop signals the workers to exit and waits for them
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.stopCh)
	q.mu.Unlock()

	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		job, err := q.dequeueJob(ctx)
		if err != nil {
			if err != redis.Nil {
				log.Errorf("[JobQueue] Worker %d dequeue error: %v", id, err)
				time.Sleep(time.Second)
			}
			continue
		}
		if job == nil {
			continue
		}

		q.processJob(ctx, job)
	}
}

func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	jobID, err := q.client.BRPopLPush(ctx, pendingKey, processingKey, dequeueTimeout).Result()
	if err != nil {
		return nil, err
	}

	data, err := q.client.Get(ctx, jobKeyPrefix+jobID).Result()
	if err != nil {
		// job payload expired while queued, drop the marker
		q.client.LRem(ctx, processingKey, 1, jobID)
		return nil, fmt.Errorf("job %s data missing: %w", jobID, err)
	}

	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		q.client.LRem(ctx, processingKey, 1, jobID)
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}

	now := time.Now()
	job.Status = JobStatusProcessing
	job.StartedAt = &now
	if err := q.updateJob(ctx, &job); err != nil {
		log.Warnf("[JobQueue] Failed to mark job %s as processing: %v", job.ID, err)
	}
	return &job, nil
}

func (q *Queue) processJob(ctx context.Context, job *Job) {
	var err error
	switch job.Type {
	case JobTypeActivateSubscription:
		err = q.runActivation(ctx, job)
	case JobTypeRecordHistory:
		err = q.runHistory(ctx, job)
	case JobTypeNotifyUser:
		err = q.runNotify(ctx, job)
	case JobTypeRecoverySweep:
		err = q.runSweep(ctx, job)
	default:
		err = fmt.Errorf("unknown job type: %s", job.Type)
	}

	if err != nil {
		q.handleJobFailure(ctx, job, err)
		return
	}

	now := time.Now()
	job.Status = JobStatusCompleted
	job.CompletedAt = &now
	job.ErrorMsg = ""
	if uerr := q.updateJob(ctx, job); uerr != nil {
		log.Warnf("[JobQueue] Failed to persist completion of job %s: %v", job.ID, uerr)
	}
	q.client.LRem(ctx, processingKey, 1, job.ID)
	q.client.Expire(ctx, jobKeyPrefix+job.ID, completedJobTTL)
	q.client.HIncrBy(ctx, statsKey, "completed", 1)
	log.Debugf("[JobQueue] Job %s type=%s completed", job.ID, job.Type)
}

func (q *Queue) handleJobFailure(ctx context.Context, job *Job, cause error) {
	job.RetryCount++
	job.ErrorMsg = cause.Error()
	q.client.LRem(ctx, processingKey, 1, job.ID)

	if job.RetryCount > job.MaxRetries {
		job.Status = JobStatusFailed
		now := time.Now()
		job.CompletedAt = &now
		if err := q.updateJob(ctx, job); err != nil {
			log.Warnf("[JobQueue] Failed to persist failure of job %s: %v", job.ID, err)
		}
		q.client.HIncrBy(ctx, statsKey, "failed", 1)
		log.Errorf("[JobQueue] Job %s type=%s failed permanently after %d attempts: %v", job.ID, job.Type, job.RetryCount, cause)
		return
	}

	job.Status = JobStatusRetrying
	if err := q.updateJob(ctx, job); err != nil {
		log.Warnf("[JobQueue] Failed to persist retry state of job %s: %v", job.ID, err)
	}
	q.client.HIncrBy(ctx, statsKey, "retried", 1)

	delay := retryBaseDelay * time.Duration(1<<(job.RetryCount-1))
	log.Warnf("[JobQueue] Job %s type=%s attempt %d failed, retrying in %s: %v", job.ID, job.Type, job.RetryCount, delay, cause)

	time.AfterFunc(delay, func() {
		rctx := context.Background()
		job.Status = JobStatusPending
		if err := q.updateJob(rctx, job); err != nil {
			log.Errorf("[JobQueue] Failed to requeue job %s: %v", job.ID, err)
			return
		}
		if err := q.client.LPush(rctx, pendingKey, job.ID).Err(); err != nil {
			log.Errorf("[JobQueue] Failed to push job %s back to queue: %v", job.ID, err)
		}
	})
}

func (q *Queue) updateJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.Set(ctx, jobKeyPrefix+job.ID, data, jobTTL).Err()
}

func (q *Queue) runActivation(ctx context.Context, job *Job) error {
	if q.handlers.Activator == nil {
		return fmt.Errorf("no activator configured")
	}
	var payload ActivationPayload
	if err := payload.FromMap(job.Payload); err != nil {
		return fmt.Errorf("invalid activation payload: %w", err)
	}
	return q.handlers.Activator.Activate(ctx, payload.PaymentID)
}

func (q *Queue) runHistory(ctx context.Context, job *Job) error {
	if q.handlers.History == nil {
		return fmt.Errorf("no history recorder configured")
	}
	var payload HistoryPayload
	if err := payload.FromMap(job.Payload); err != nil {
		return fmt.Errorf("invalid history payload: %w", err)
	}
	return q.handlers.History.Record(ctx, payload)
}

func (q *Queue) runNotify(ctx context.Context, job *Job) error {
	if q.handlers.Notifier == nil {
		return fmt.Errorf("no notifier configured")
	}
	var payload NotifyPayload
	if err := payload.FromMap(job.Payload); err != nil {
		return fmt.Errorf("invalid notify payload: %w", err)
	}
	return q.handlers.Notifier.Notify(ctx, payload.UserID, payload.PaymentID, payload.Status)
}

func (q *Queue) runSweep(ctx context.Context, job *Job) error {
	if q.handlers.Sweeper == nil {
		return fmt.Errorf("no recovery sweeper configured")
	}
	var payload SweepPayload
	if err := payload.FromMap(job.Payload); err != nil {
		return fmt.Errorf("invalid sweep payload: %w", err)
	}
	olderThan := time.Duration(payload.OlderThanMinutes) * time.Minute
	recovered, err := q.handlers.Sweeper.SweepOnce(ctx, olderThan, payload.Limit)
	if err != nil {
		return err
	}
	if recovered > 0 {
		log.Infof("[JobQueue] Recovery sweep replayed %d payments", recovered)
	}
	return nil
}

// GetJob fetches a job by ID
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := q.client.Get(ctx, jobKeyPrefix+jobID).Result()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetQueueStats returns the queue counters
func (q *Queue) GetQueueStats(ctx context.Context) (map[string]int64, error) {
	raw, err := q.client.HGetAll(ctx, statsKey).Result()
	if err != nil {
		return nil, err
	}
	stats := make(map[string]int64, len(raw))
	for k, v := range raw {
		var n int64
		fmt.Sscanf(v, "%d", &n)
		stats[k] = n
	}
	pending, err := q.client.LLen(ctx, pendingKey).Result()
	if err == nil {
		stats["pending"] = pending
	}
	processing, err := q.client.LLen(ctx, processingKey).Result()
	if err == nil {
		stats["processing"] = processing
	}
	return stats, nil
}

// RequeueStuckJobs moves jobs that sat in the processing list for too long
// back onto the pending list. Called periodically by the manager.
func (q *Queue) RequeueStuckJobs(ctx context.Context, maxAge time.Duration) int {
	jobIDs, err := q.client.LRange(ctx, processingKey, 0, -1).Result()
	if err != nil {
		log.Errorf("[JobQueue] Failed to list processing jobs: %v", err)
		return 0
	}

	requeued := 0
	for _, jobID := range jobIDs {
		job, err := q.GetJob(ctx, jobID)
		if err != nil {
			q.client.LRem(ctx, processingKey, 1, jobID)
			continue
		}
		if job.StartedAt == nil || time.Since(*job.StartedAt) < maxAge {
			continue
		}

		log.Warnf("[JobQueue] Requeuing stuck job %s type=%s started at %s", job.ID, job.Type, job.StartedAt.Format(time.RFC3339))
		q.client.LRem(ctx, processingKey, 1, jobID)
		job.Status = JobStatusPending
		job.StartedAt = nil
		if err := q.updateJob(ctx, job); err != nil {
			log.Errorf("[JobQueue] Failed to reset stuck job %s: %v", job.ID, err)
			continue
		}
		if err := q.client.LPush(ctx, pendingKey, job.ID).Err(); err != nil {
			log.Errorf("[JobQueue] Failed to requeue stuck job %s: %v", job.ID, err)
			continue
		}
		requeued++
	}
	return requeued
}
