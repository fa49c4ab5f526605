package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/audit"
	"rollcall/internal/metrics"
	"rollcall/internal/model"
)

// SessionSource lists every known session.
type SessionSource interface {
	Sessions() []model.ClassSession
}

// Sweeper periodically re-evaluates session windows and announces transitions.
type Sweeper struct {
	sessions SessionSource
	pub      *audit.Publisher
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time

	mu   sync.Mutex
	seen map[string]attendance.Validity
}

// NewSweeper watches the sessions of src and announces transitions through pub.
func NewSweeper(src SessionSource, pub *audit.Publisher, m *metrics.Metrics, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Sweeper{
		sessions: src,
		pub:      pub,
		metrics:  m,
		log:      log,
		now:      time.Now,
		seen:     make(map[string]attendance.Validity),
	}
}

// Transition is a change of a session's validity observed by a sweep.
type Transition struct {
	Session model.ClassSession
	From    attendance.Validity
	To      attendance.Validity
}

// Sweep evaluates every session at now. The first sighting of a session only sets
// its baseline; later sweeps report every change and publish the matching event.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[attendance.Validity]int{}
	var out []Transition
	for _, session := range s.sessions.Sessions() {
		v := attendance.EvaluateValidity(session, now)
		counts[v]++
		prev, known := s.seen[session.ID]
		s.seen[session.ID] = v
		if !known || prev == v {
			continue
		}
		out = append(out, Transition{Session: session, From: prev, To: v})
		switch v {
		case attendance.Ongoing:
			s.pub.SessionChanged(ctx, audit.TypeSessionStarted, session, now)
		case attendance.Expired:
			s.pub.SessionChanged(ctx, audit.TypeSessionExpired, session, now)
		}
	}
	for _, v := range []attendance.Validity{attendance.NotStarted, attendance.Ongoing, attendance.Expired} {
		s.metrics.Sessions.WithLabelValues(v.String()).Set(float64(counts[v]))
	}
	if len(out) > 0 {
		s.log.Info("session transitions", zap.Int("count", len(out)))
	}
	return out
}

// Start schedules Sweep on schedule (standard cron or @every syntax) and runs one sweep
// immediately. Stop the returned cron to end the schedule.
func (s *Sweeper) Start(ctx context.Context, schedule string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(schedule, func() { s.Sweep(ctx, s.now()) }); err != nil {
		return nil, err
	}
	s.Sweep(ctx, s.now())
	c.Start()
	return c, nil
}
