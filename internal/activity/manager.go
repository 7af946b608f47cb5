package activity

import (
	"container/heap"
	"context"

	"github.com/signalsfoundry/shipping-simulator/internal/logging"
	"github.com/signalsfoundry/shipping-simulator/model"
)

// MetricsRecorder receives scheduler measurements. Implementations must
// tolerate being called on every dispatch.
type MetricsRecorder interface {
	ActivityExecuted(name string)
	SetQueueDepth(depth int)
	SetClock(now model.Time)
}

// Manager owns the simulation clock and the time-ordered queue of scheduled
// activities. It always dispatches the earliest activity; activities with the
// same time run in the order they were scheduled.
//
// A Manager is not safe for concurrent use.
type Manager struct {
	now     model.Time
	queue   activityQueue
	seq     uint64
	log     logging.Logger
	metrics MetricsRecorder
}

// Option customises Manager construction.
type Option func(*Manager)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(r MetricsRecorder) Option {
	return func(m *Manager) {
		m.metrics = r
	}
}

// NewManager returns a manager with its clock at zero.
func NewManager(opts ...Option) *Manager {
	m := &Manager{log: logging.Noop()}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// NewActivity creates a free activity owned by m.
func (m *Manager) NewActivity(name string) *Activity {
	return &Activity{name: name, manager: m, index: -1}
}

// Now returns the current simulation time.
func (m *Manager) Now() model.Time { return m.now }

// Pending returns the number of queued activities.
func (m *Manager) Pending() int { return len(m.queue) }

// NextTime returns the time of the earliest queued activity.
func (m *Manager) NextTime() (model.Time, bool) {
	if len(m.queue) == 0 {
		return 0, false
	}
	return m.queue[0].nextTime, true
}

func (m *Manager) enqueue(ctx context.Context, a *Activity) error {
	if a.reactor == nil {
		return ErrNoReactor
	}
	if a.nextTime < m.now {
		m.log.Warn(ctx, "activity scheduled in the past; running at current time",
			logging.String("activity", a.name),
			logging.Float("requested", float64(a.nextTime)),
			logging.Float("now", float64(m.now)),
		)
		a.nextTime = m.now
	}
	m.seq++
	a.seq = m.seq
	if a.Queued() {
		heap.Fix(&m.queue, a.index)
	} else {
		heap.Push(&m.queue, a)
	}
	m.recordDepth()
	return nil
}

func (m *Manager) dequeue(a *Activity) {
	heap.Remove(&m.queue, a.index)
	m.recordDepth()
}

// Step dispatches the earliest activity: the clock advances to its time, it
// moves to Executing, and then to Free unless its reactor already moved it
// elsewhere. Step returns false when nothing is queued.
func (m *Manager) Step(ctx context.Context) bool {
	if len(m.queue) == 0 {
		return false
	}
	a := heap.Pop(&m.queue).(*Activity)
	if a.nextTime > m.now {
		m.now = a.nextTime
	}
	if m.metrics != nil {
		m.metrics.SetClock(m.now)
	}
	m.recordDepth()

	m.log.Debug(ctx, "executing activity",
		logging.String("activity", a.name),
		logging.Float("now", float64(m.now)),
	)
	if err := a.SetStatus(ctx, Executing); err != nil {
		m.log.Error(ctx, "activity failed to execute", logging.String("activity", a.name), logging.Err(err))
	}
	if a.status == Executing {
		if err := a.SetStatus(ctx, Free); err != nil {
			m.log.Error(ctx, "activity failed to go idle", logging.String("activity", a.name), logging.Err(err))
		}
	}
	if m.metrics != nil {
		m.metrics.ActivityExecuted(a.name)
	}
	return true
}

// RunUntil dispatches every activity scheduled at or before t and then moves
// the clock to t. It returns the number of activities executed.
func (m *Manager) RunUntil(ctx context.Context, t model.Time) (int, error) {
	executed := 0
	for {
		if err := ctx.Err(); err != nil {
			return executed, err
		}
		next, ok := m.NextTime()
		if !ok || next > t {
			break
		}
		m.Step(ctx)
		executed++
	}
	if t > m.now {
		m.now = t
		if m.metrics != nil {
			m.metrics.SetClock(m.now)
		}
	}
	return executed, nil
}

// Run dispatches until the queue is empty or maxSteps activities have run.
// maxSteps <= 0 means no bound.
func (m *Manager) Run(ctx context.Context, maxSteps int) (int, error) {
	executed := 0
	for maxSteps <= 0 || executed < maxSteps {
		if err := ctx.Err(); err != nil {
			return executed, err
		}
		if !m.Step(ctx) {
			break
		}
		executed++
	}
	return executed, nil
}

func (m *Manager) recordDepth() {
	if m.metrics != nil {
		m.metrics.SetQueueDepth(len(m.queue))
	}
}

// activityQueue is a min-heap ordered by (nextTime, seq).
type activityQueue []*Activity

func (q activityQueue) Len() int { return len(q) }

func (q activityQueue) Less(i, j int) bool {
	if q[i].nextTime != q[j].nextTime {
		return q[i].nextTime < q[j].nextTime
	}
	return q[i].seq < q[j].seq
}

func (q activityQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *activityQueue) Push(x any) {
	a := x.(*Activity)
	a.index = len(*q)
	*q = append(*q, a)
}

func (q *activityQueue) Pop() any {
	old := *q
	n := len(old)
	a := old[n-1]
	old[n-1] = nil
	a.index = -1
	*q = old[:n-1]
	return a
}
