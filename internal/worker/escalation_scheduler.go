package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/outreach-core/internal/pkg/distlock"
	"github.com/ignite/outreach-core/internal/pkg/logger"
	"github.com/ignite/outreach-core/internal/service/escalation"
)

// =============================================================================
// ESCALATION SCHEDULER
// =============================================================================
// Every tick the scheduler walks the campaign catalog. For each campaign it
// takes a distributed lock so only one worker drives that campaign at a
// time, lists the states whose inter-step delay has elapsed, and hands them
// to the Sequencer's ProcessBatch.

const (
	DefaultTickInterval = 60 * time.Second
	DefaultLockTTL      = 120 * time.Second
	lockKeyPrefix       = "outreach:escalation:"
)

// CampaignTick is one campaign's outcome within a tick.
type CampaignTick struct {
	CampaignID string                  `json:"campaign_id"`
	Due        int                     `json:"due"`
	Locked     bool                    `json:"locked"` // another runner holds the campaign
	Report     *escalation.BatchReport `json:"report,omitempty"`
	Err        error                   `json:"-"`
}

// TickReport summarizes one pass over the catalog.
type TickReport struct {
	StartedAt time.Time      `json:"started_at"`
	Campaigns []CampaignTick `json:"campaigns"`
}

// Sent totals successful sends across campaigns.
func (r TickReport) Sent() int {
	n := 0
	for _, c := range r.Campaigns {
		if c.Report != nil {
			n += c.Report.Sent
		}
	}
	return n
}

// EscalationScheduler periodically advances due escalation states.
type EscalationScheduler struct {
	seq      *escalation.Sequencer
	states   escalation.StateRepository
	locks    distlock.Factory
	interval time.Duration
	workerID string
	now      func() time.Time
	log      *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	ticks int64
	sent  int64
}

// SchedulerOption customizes an EscalationScheduler.
type SchedulerOption func(*EscalationScheduler)

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *EscalationScheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSchedulerClock overrides the time source used for due cutoffs.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *EscalationScheduler) { s.now = now }
}

// NewEscalationScheduler creates a scheduler. States must be the same
// repository the sequencer writes to.
func NewEscalationScheduler(seq *escalation.Sequencer, states escalation.StateRepository, locks distlock.Factory, opts ...SchedulerOption) *EscalationScheduler {
	host, _ := os.Hostname()
	s := &EscalationScheduler{
		seq:      seq,
		states:   states,
		locks:    locks,
		interval: DefaultTickInterval,
		workerID: fmt.Sprintf("escalation-%s-%d", host, time.Now().UnixNano()%10000),
		now:      time.Now,
		log:      logger.New("escalation-scheduler"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start runs an immediate tick and then one per interval until Stop.
func (s *EscalationScheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("escalation scheduler already running")
	}
	s.running = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.log.Info("starting", "worker_id", s.workerID, "interval", s.interval.String(), "campaigns", len(s.seq.Catalog().IDs()))

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (s *EscalationScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.log.Info("stopped", "ticks", atomic.LoadInt64(&s.ticks), "sent", atomic.LoadInt64(&s.sent))
}

// Stats returns the number of completed ticks and successful sends.
func (s *EscalationScheduler) Stats() (ticks, sent int64) {
	return atomic.LoadInt64(&s.ticks), atomic.LoadInt64(&s.sent)
}

func (s *EscalationScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick makes one pass over every campaign in the catalog.
func (s *EscalationScheduler) Tick(ctx context.Context) TickReport {
	report := TickReport{StartedAt: s.now()}
	for _, id := range s.seq.Catalog().IDs() {
		if ctx.Err() != nil {
			break
		}
		report.Campaigns = append(report.Campaigns, s.tickCampaign(ctx, id))
	}
	atomic.AddInt64(&s.ticks, 1)
	atomic.AddInt64(&s.sent, int64(report.Sent()))
	return report
}

func (s *EscalationScheduler) tickCampaign(ctx context.Context, campaignID string) CampaignTick {
	out := CampaignTick{CampaignID: campaignID}

	camp, err := s.seq.Catalog().Get(campaignID)
	if err != nil {
		out.Err = err
		return out
	}
	cfg := camp.Settings

	err = distlock.WithLock(ctx, s.locks(lockKeyPrefix+campaignID), func(ctx context.Context) error {
		due, err := s.states.ListDue(ctx, escalation.DueQuery{
			CampaignID: campaignID,
			MaxSteps:   cfg.MaxSteps,
			SentBefore: s.now().Add(-cfg.InterStepDelay),
			Limit:      cfg.BatchSize,
		})
		if err != nil {
			return fmt.Errorf("list due states: %w", err)
		}
		out.Due = len(due)
		if len(due) == 0 {
			return nil
		}
		batch := s.seq.ProcessBatch(ctx, due)
		out.Report = &batch
		return nil
	})

	switch {
	case errors.Is(err, distlock.ErrNotAcquired):
		out.Locked = true
		s.log.Debug("campaign locked by another runner", "campaign_id", campaignID)
	case err != nil:
		out.Err = err
		s.log.Error("campaign tick failed", "campaign_id", campaignID, "error", err)
	case out.Report != nil:
		r := out.Report
		s.log.Info("campaign tick",
			"campaign_id", campaignID, "due", out.Due, "sent", r.Sent, "skipped", r.Skipped,
			"denied", r.Denied, "failed", r.Failed, "completed", r.Completed, "paused", r.Paused)
	}
	return out
}
