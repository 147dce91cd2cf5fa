package review

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const CleanupCountdown = 3 * time.Second

// CleanupGate guards batch cleanup: the auditor must tick the
// acknowledgement and wait out the countdown before confirming.
type CleanupGate struct {
	BatchID    string
	TotalItems int

	clock    clockwork.Clock
	deadline time.Time

	mu           sync.Mutex
	acknowledged bool
}

func newCleanupGate(clock clockwork.Clock, batchID string, total int) *CleanupGate {
	return &CleanupGate{
		BatchID:    batchID,
		TotalItems: total,
		clock:      clock,
		deadline:   clock.Now().Add(CleanupCountdown),
	}
}

// SecondsLeft is the countdown rounded up to whole seconds.
func (g *CleanupGate) SecondsLeft() int {
	left := g.deadline.Sub(g.clock.Now())
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

func (g *CleanupGate) SetAcknowledged(v bool) {
	g.mu.Lock()
	g.acknowledged = v
	g.mu.Unlock()
}

func (g *CleanupGate) ToggleAcknowledged() {
	g.mu.Lock()
	g.acknowledged = !g.acknowledged
	g.mu.Unlock()
}

func (g *CleanupGate) Acknowledged() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.acknowledged
}

func (g *CleanupGate) Ready() bool {
	return g.Acknowledged() && g.SecondsLeft() == 0
}
