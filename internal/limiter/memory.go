package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/visitguard/internal/model"
)

// DefaultVisitTTL is how long an idle per-visit counter is kept.
const DefaultVisitTTL = 24 * time.Hour

// Memory is an in-process limiter. Each key has its own mutex; unrelated keys never contend.
type Memory struct {
	limits   Limits
	visitTTL time.Duration
	now      func() time.Time

	windows sync.Map // WindowKey -> *windowEntry
	visits  sync.Map // VisitKey -> *visitEntry
}

type windowEntry struct {
	mu        sync.Mutex
	dead      bool
	hourCount int
	hourReset time.Time
	dayCount  int
	dayReset  time.Time
}

type visitEntry struct {
	mu       sync.Mutex
	dead     bool
	count    int
	lastSeen time.Time
}

// MemoryOption configures Memory.
type MemoryOption func(*Memory)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// WithVisitTTL sets how long idle per-visit counters survive Prune.
func WithVisitTTL(d time.Duration) MemoryOption {
	return func(m *Memory) {
		if d > 0 {
			m.visitTTL = d
		}
	}
}

// NewMemory constructs an in-memory limiter.
func NewMemory(limits Limits, opts ...MemoryOption) (*Memory, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	m := &Memory{limits: limits, visitTTL: DefaultVisitTTL, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

var _ Limiter = (*Memory)(nil)

// CheckLimit implements Limiter.
func (m *Memory) CheckLimit(_ context.Context, subjectKey, eventType, visitID string) (bool, error) {
	if err := ValidateKey(subjectKey, eventType, visitID); err != nil {
		return false, err
	}
	now := m.now()
	w := m.lockWindow(WindowKey(subjectKey, eventType))
	defer w.mu.Unlock()

	if !w.hourReset.After(now) {
		w.hourCount, w.hourReset = 0, now.Add(HourWindow)
	}
	if !w.dayReset.After(now) {
		w.dayCount, w.dayReset = 0, now.Add(DayWindow)
	}

	if visitID != "" && !m.takeVisit(VisitKey(subjectKey, eventType, visitID), now) {
		return false, nil
	}

	if w.hourCount >= m.limits.MaxPerHour || w.dayCount >= m.limits.MaxPerDay {
		return false, nil
	}
	w.hourCount++
	w.dayCount++
	return true, nil
}

func (m *Memory) takeVisit(key string, now time.Time) bool {
	v := m.lockVisit(key)
	defer v.mu.Unlock()
	v.lastSeen = now
	if v.count >= m.limits.MaxPerVisit {
		return false
	}
	v.count++
	return true
}

// lockWindow returns the live entry for key with its mutex held.
func (m *Memory) lockWindow(key string) *windowEntry {
	for {
		e, _ := m.windows.LoadOrStore(key, &windowEntry{})
		w := e.(*windowEntry)
		w.mu.Lock()
		if !w.dead {
			return w
		}
		w.mu.Unlock()
	}
}

func (m *Memory) lockVisit(key string) *visitEntry {
	for {
		e, _ := m.visits.LoadOrStore(key, &visitEntry{})
		v := e.(*visitEntry)
		v.mu.Lock()
		if !v.dead {
			return v
		}
		v.mu.Unlock()
	}
}

// Reset implements Limiter.
func (m *Memory) Reset(context.Context) error {
	m.windows.Range(func(k, e any) bool {
		w := e.(*windowEntry)
		w.mu.Lock()
		w.dead = true
		m.windows.Delete(k)
		w.mu.Unlock()
		return true
	})
	m.visits.Range(func(k, e any) bool {
		v := e.(*visitEntry)
		v.mu.Lock()
		v.dead = true
		m.visits.Delete(k)
		v.mu.Unlock()
		return true
	})
	return nil
}

// CurrentLimits implements Limiter.
func (m *Memory) CurrentLimits(context.Context) (map[string]model.LimitState, error) {
	out := make(map[string]model.LimitState)
	m.windows.Range(func(k, e any) bool {
		w := e.(*windowEntry)
		w.mu.Lock()
		if !w.dead {
			out[k.(string)] = model.LimitState{
				Kind:        model.LimitWindow,
				HourCount:   w.hourCount,
				HourResetAt: w.hourReset,
				DayCount:    w.dayCount,
				DayResetAt:  w.dayReset,
			}
		}
		w.mu.Unlock()
		return true
	})
	m.visits.Range(func(k, e any) bool {
		v := e.(*visitEntry)
		v.mu.Lock()
		if !v.dead {
			out[k.(string)] = model.LimitState{Kind: model.LimitVisit, VisitCount: v.count}
		}
		v.mu.Unlock()
		return true
	})
	return out, nil
}

// Prune drops window counters whose daily window has elapsed and visit counters
// idle for longer than the visit TTL. It returns the number of entries removed.
func (m *Memory) Prune() int {
	now := m.now()
	n := 0
	m.windows.Range(func(k, e any) bool {
		w := e.(*windowEntry)
		w.mu.Lock()
		if !w.dead && !w.dayReset.After(now) && !w.hourReset.After(now) {
			w.dead = true
			m.windows.Delete(k)
			n++
		}
		w.mu.Unlock()
		return true
	})
	m.visits.Range(func(k, e any) bool {
		v := e.(*visitEntry)
		v.mu.Lock()
		if !v.dead && now.Sub(v.lastSeen) > m.visitTTL {
			v.dead = true
			m.visits.Delete(k)
			n++
		}
		v.mu.Unlock()
		return true
	})
	return n
}

// Run prunes every interval until ctx is done.
func (m *Memory) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Prune()
		}
	}
}
