package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/pnpbots/pnptv-payments/internal/pkg/env"
)

var (
	manager     *Manager
	managerOnce sync.Once
)

// Manager owns the queue lifecycle plus the periodic maintenance tickers.
type Manager struct {
	queue  *Queue
	stopCh chan struct{}
	wg     sync.WaitGroup

	sweepInterval time.Duration
	sweepOlderMin int
	sweepLimit    int
	stuckInterval time.Duration
	stuckMaxAge   time.Duration
}

// GetManager initializes the singleton manager on first call.
func GetManager(client *redis.Client, handlers Handlers) *Manager {
	managerOnce.Do(func() {
		workers := env.GetEnvInt("JOBQUEUE_WORKERS", 2)
		manager = &Manager{
			queue:         NewQueue(client, handlers, workers),
			stopCh:        make(chan struct{}),
			sweepInterval: env.GetEnvDuration("RECOVERY_SWEEP_INTERVAL", 5*time.Minute),
			sweepOlderMin: env.GetEnvInt("RECOVERY_SWEEP_OLDER_MINUTES", 30),
			sweepLimit:    env.GetEnvInt("RECOVERY_SWEEP_LIMIT", 50),
			stuckInterval: env.GetEnvDuration("JOBQUEUE_STUCK_INTERVAL", time.Minute),
			stuckMaxAge:   env.GetEnvDuration("JOBQUEUE_STUCK_MAX_AGE", 10*time.Minute),
		}
	})
	return manager
}

// Queue exposes the underlying queue for dispatchers and admin handlers.
func (m *Manager) Queue() *Queue {
	return m.queue
}

// Start launches the workers and the maintenance loops.
func (m *Manager) Start() {
	m.queue.Start()

	m.wg.Add(1)
	go m.sweepLoop()

	m.wg.Add(1)
	go m.stuckLoop()

	log.Info("[JobQueue] Manager started")
}

// Stop shuts down the tickers first, then the workers.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.queue.Stop()
	log.Info("[JobQueue] Manager stopped")
}

func (m *Manager) sweepLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			payload := SweepPayload{OlderThanMinutes: m.sweepOlderMin, Limit: m.sweepLimit}
			if _, err := m.queue.EnqueueJob(context.Background(), JobTypeRecoverySweep, payload.ToMap()); err != nil {
				log.Errorf("[JobQueue] Failed to enqueue recovery sweep: %v", err)
			}
		}
	}
}

func (m *Manager) stuckLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.stuckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if n := m.queue.RequeueStuckJobs(context.Background(), m.stuckMaxAge); n > 0 {
				log.Infof("[JobQueue] Requeued %d stuck jobs", n)
			}
		}
	}
}
