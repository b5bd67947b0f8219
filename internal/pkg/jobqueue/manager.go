package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/ManuelReschke/FormFox/internal/pkg/billing"
	"github.com/ManuelReschke/FormFox/internal/pkg/cache"
	"github.com/ManuelReschke/FormFox/internal/pkg/database"
	"github.com/ManuelReschke/FormFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

const (
	defaultWorkerCount      = 3
	defaultReminderInterval = 60 * time.Minute
	reminderSweepTimeout    = 2 * time.Minute
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue            *Queue
	sweep            *billing.ReminderSweep
	reminderInterval time.Duration
	reminderTicker   *time.Ticker
	stopCh           chan struct{}
	wg               sync.WaitGroup
	mu               sync.Mutex
	running          bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		queue := NewQueue(env.GetEnvInt("JOBQUEUE_WORKERS", defaultWorkerCount))
		globalManager = NewManager(queue, NewReminderSweep(queue))
		globalManager.reminderInterval = time.Duration(env.GetEnvInt("BILLING_REMINDER_INTERVAL_MINUTES", 60)) * time.Minute
	})
	return globalManager
}

// NewManager wires a queue and the cancel-reminder sweep
func NewManager(queue *Queue, sweep *billing.ReminderSweep) *Manager {
	return &Manager{
		queue:            queue,
		sweep:            sweep,
		reminderInterval: defaultReminderInterval,
		stopCh:           make(chan struct{}),
	}
}

// NewReminderSweep builds the sweep on the shared database and cache. Alert
// mails go through the queue.
func NewReminderSweep(queue *Queue) *billing.ReminderSweep {
	return billing.NewReminderSweep(
		database.GetDB(),
		cache.GetClient(),
		env.GetEnv("BILLING_ALERT_EMAIL", ""),
		queue.Notifier(),
	).WithWindow(env.GetEnvDuration("BILLING_REMINDER_WINDOW", billing.DefaultReminderWindow))
}

// Notifier adapts the queue to the billing reminder notifier
func (q *Queue) Notifier() billing.Notifier {
	return func(ctx context.Context, to, subject, body string) error {
		return q.EnqueueMail(ctx, []string{to}, subject, body)
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	if m.sweep != nil && m.reminderInterval > 0 {
		m.reminderTicker = time.NewTicker(m.reminderInterval)
		m.wg.Add(1)
		go m.reminderWorker(m.reminderTicker, m.stopCh)
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.reminderTicker != nil {
		m.reminderTicker.Stop()
	}

	// Signal workers to stop
	close(m.stopCh)
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// reminderWorker runs the cancel-reminder sweep periodically
func (m *Manager) reminderWorker(ticker *time.Ticker, stopCh <-chan struct{}) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started reminder worker (interval: %s)", m.reminderInterval)

	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Reminder worker stopping")
			return
		case <-ticker.C:
			if _, err := m.RunReminderSweepOnce(context.Background(), time.Now()); err != nil {
				log.Errorf("[JobQueue Manager] Reminder sweep error: %v", err)
			}
		}
	}
}

// RunReminderSweepOnce runs a single cancel-reminder sweep
func (m *Manager) RunReminderSweepOnce(ctx context.Context, now time.Time) ([]billing.Reminder, error) {
	if m.sweep == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, reminderSweepTimeout)
	defer cancel()
	return m.sweep.Sweep(ctx, now)
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
