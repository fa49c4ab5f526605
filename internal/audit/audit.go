package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"rollcall/internal/metrics"
	"rollcall/internal/model"
	"rollcall/internal/queue"
)

// Event types carried on the queue.
const (
	TypeRecorded       = "attendance.recorded"
	TypeEdited         = "attendance.edited"
	TypeSessionStarted = "session.started"
	TypeSessionExpired = "session.expired"
)

// Event is the queue body of every audit message.
type Event struct {
	Type    string                  `json:"type"`
	At      time.Time               `json:"at"`
	ActorID string                  `json:"actorId,omitempty"`
	Record  *model.AttendanceRecord `json:"record,omitempty"`
	Session *model.ClassSession     `json:"session,omitempty"`
}

// Publisher turns domain changes into queue messages. Failures are logged and
// never surface to the caller: the write they describe already happened.
type Publisher struct {
	q   queue.Queue
	log *zap.Logger
}

// NewPublisher sends events to q. A nil log discards publish failures.
func NewPublisher(q queue.Queue, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{q: q, log: log}
}

// Publish encodes ev and enqueues it.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.q.Publish(ctx, queue.Message{Type: ev.Type, Body: body})
}

func (p *Publisher) emit(ctx context.Context, ev Event) {
	if p == nil || p.q == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		p.log.Warn("audit publish failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

// Recorded announces a new attendance record.
func (p *Publisher) Recorded(ctx context.Context, rec model.AttendanceRecord, at time.Time) {
	p.emit(ctx, Event{Type: TypeRecorded, At: at, ActorID: rec.MarkedBy, Record: &rec})
}

// Edited announces a teacher override.
func (p *Publisher) Edited(ctx context.Context, rec model.AttendanceRecord, at time.Time) {
	p.emit(ctx, Event{Type: TypeEdited, At: at, ActorID: rec.EditedBy, Record: &rec})
}

// SessionChanged announces a session entering a new time-window state.
func (p *Publisher) SessionChanged(ctx context.Context, typ string, s model.ClassSession, at time.Time) {
	p.emit(ctx, Event{Type: typ, At: at, Session: &s})
}

// Consumer drains audit events into the log and the metrics.
type Consumer struct {
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewConsumer logs each event to log and counts it in m.
func NewConsumer(log *zap.Logger, m *metrics.Metrics) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Consumer{log: log, metrics: m}
}

// Run consumes q until ctx is done.
func (c *Consumer) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		c.Handle(msg)
	}
	return nil
}

// Handle processes a single message.
func (c *Consumer) Handle(msg queue.Message) {
	var ev Event
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		c.log.Warn("undecodable audit event", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	if ev.Type == "" {
		ev.Type = msg.Type
	}
	c.metrics.Events.WithLabelValues(ev.Type).Inc()

	switch ev.Type {
	case TypeRecorded, TypeEdited:
		if ev.Record == nil {
			c.log.Warn("audit event without record", zap.String("type", ev.Type))
			return
		}
		r := ev.Record
		if ev.Type == TypeRecorded {
			c.metrics.Marks.WithLabelValues(string(r.Status), markerRole(*r)).Inc()
		} else {
			c.metrics.Edits.Inc()
		}
		c.log.Info(ev.Type,
			zap.String("record", r.ID),
			zap.String("class", r.ClassID),
			zap.String("student", r.StudentID),
			zap.String("status", string(r.Status)),
			zap.String("actor", ev.ActorID),
			zap.Time("at", ev.At),
		)
	case TypeSessionStarted, TypeSessionExpired:
		if ev.Session == nil {
			c.log.Warn("audit event without session", zap.String("type", ev.Type))
			return
		}
		c.log.Info(ev.Type,
			zap.String("class", ev.Session.ID),
			zap.String("subject", ev.Session.Subject),
			zap.Time("at", ev.At),
		)
	default:
		c.log.Debug("ignored event", zap.String("type", ev.Type))
	}
}

func markerRole(r model.AttendanceRecord) string {
	if r.MarkedBy == "" || r.MarkedBy == r.StudentID {
		return "student"
	}
	return "teacher"
}
