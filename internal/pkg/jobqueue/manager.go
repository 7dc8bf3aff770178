package jobqueue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/internal/pkg/reports"
)

type CampaignClaimer interface {
	ClaimDue() ([]models.MarketingCampaign, error)
}

type CounterFlusher interface {
	FlushAll(ctx context.Context) error
}

type ReviewSyncer interface {
	SyncAll(ctx context.Context) (int, error)
}

// Tasks are the periodic jobs run by the manager. Nil tasks are skipped.
type Tasks struct {
	Campaigns CampaignClaimer
	Counters  CounterFlusher
	Reviews   ReviewSyncer
	// Reports enables the monthly report ticker.
	Reports bool
}

type Intervals struct {
	Schedule       time.Duration
	CounterFlush   time.Duration
	ReviewRequests time.Duration
	ReviewSync     time.Duration
	Reports        time.Duration
}

func DefaultIntervals() Intervals {
	return Intervals{
		Schedule:       30 * time.Second,
		CounterFlush:   5 * time.Second,
		ReviewRequests: time.Minute,
		ReviewSync:     6 * time.Hour,
		Reports:        time.Hour,
	}
}

// Manager manages the global job queue and background tasks
type Manager struct {
	queue     *Queue
	tasks     Tasks
	intervals Intervals
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool

	lastReportPeriod string
	now              func() time.Time
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = NewManager(NewQueue(5), Tasks{}, DefaultIntervals())
	})
	return globalManager
}

func NewManager(queue *Queue, tasks Tasks, intervals Intervals) *Manager {
	return &Manager{
		queue:     queue,
		tasks:     tasks,
		intervals: intervals,
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
}

// Configure sets the periodic tasks; it has no effect on a running manager.
func (m *Manager) Configure(tasks Tasks, intervals Intervals) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.tasks = tasks
	m.intervals = intervals
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

	m.stopCh = make(chan struct{})
	m.running = true
	zap.L().Info("starting job manager")

	m.queue.Start()

	if m.tasks.Campaigns != nil {
		m.every("campaign scheduler", m.intervals.Schedule, func(ctx context.Context) error {
			_, err := m.EnqueueDueCampaigns()
			return err
		})
	}
	if m.tasks.Counters != nil {
		m.every("counter flush", m.intervals.CounterFlush, m.tasks.Counters.FlushAll)
	}
	if _, ok := m.queue.handler(JobTypeReviewRequestSend); ok {
		m.every("review requests", m.intervals.ReviewRequests, func(context.Context) error {
			_, err := m.queue.EnqueueJob(JobTypeReviewRequestSend, ReviewRequestSendPayload{}.ToMap())
			return err
		})
	}
	if m.tasks.Reviews != nil {
		m.every("review sync", m.intervals.ReviewSync, func(ctx context.Context) error {
			_, err := m.tasks.Reviews.SyncAll(ctx)
			return err
		})
	}
	if m.tasks.Reports {
		m.every("monthly reports", m.intervals.Reports, func(context.Context) error {
			_, err := m.EnqueueMonthlyReports()
			return err
		})
	}
}

func (m *Manager) every(name string, interval time.Duration, fn func(ctx context.Context) error) {
	if interval <= 0 {
		return
	}
	stop := m.stopCh
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := fn(context.Background()); err != nil {
					zap.L().Error("background task failed", zap.String("task", name), zap.Error(err))
				}
			}
		}
	}()
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	zap.L().Info("stopping job manager")
	close(m.stopCh)
	m.running = false
	m.wg.Wait()
	m.queue.Stop()

	if m.tasks.Counters != nil {
		if err := m.tasks.Counters.FlushAll(context.Background()); err != nil {
			zap.L().Error("final counter flush failed", zap.Error(err))
		}
	}
}

// EnqueueDueCampaigns claims scheduled campaigns whose time has come and
// enqueues their delivery.
func (m *Manager) EnqueueDueCampaigns() (int, error) {
	claimed, err := m.tasks.Campaigns.ClaimDue()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range claimed {
		if _, err := m.queue.EnqueueJob(JobTypeCampaignSend, CampaignSendPayload{UserID: c.UserID, CampaignID: c.ID}.ToMap()); err != nil {
			zap.L().Error("enqueue scheduled campaign failed", zap.Uint("campaign_id", c.ID), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}

// EnqueueMonthlyReports enqueues the previous month's reports once per period.
func (m *Manager) EnqueueMonthlyReports() (bool, error) {
	period := reports.PreviousPeriod(m.now())
	if period == m.lastReportPeriod {
		return false, nil
	}
	if _, err := m.queue.EnqueueJob(JobTypeMonthlyReport, MonthlyReportPayload{Period: period}.ToMap()); err != nil {
		return false, err
	}
	m.lastReportPeriod = period
	return true, nil
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
