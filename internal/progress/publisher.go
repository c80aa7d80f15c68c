package progress

import (
	"sync"

	"go.uber.org/zap"

	"github.com/seolens/ai-visibility/internal/analysis"
)

// Publisher fans job updates out to live subscribers. Each subscriber holds a
// one-slot buffer with latest-wins coalescing: a slow consumer skips
// intermediate snapshots but always sees the newest state. Progress is
// monotonic per subscriber: a queue redelivery resets the job's progress to
// zero, and a subscriber attached across that reset must not see it move
// backwards, so non-terminal snapshots below the last delivered progress are
// dropped. Terminal snapshots always go through.
type Publisher struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	gauge  Gauge
	logger *zap.Logger
}

// Gauge tracks the number of open subscriptions. Satisfied by
// prometheus.Gauge.
type Gauge interface {
	Inc()
	Dec()
}

type subscriber struct {
	tier analysis.Tier
	ch   chan Snapshot

	// highest progress pushed so far; guarded by the publisher's mutex.
	lastProgress int
}

// NewPublisher constructs a Publisher. gauge may be nil.
func NewPublisher(gauge Gauge, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		subs:   make(map[string]map[*subscriber]struct{}),
		gauge:  gauge,
		logger: logger,
	}
}

// Subscribe opens a live subscription for a job. The returned cancel function
// must be called when the consumer is done; it closes the channel.
func (p *Publisher) Subscribe(jobID string, tier analysis.Tier) (<-chan Snapshot, func()) {
	sub := &subscriber{
		tier: tier,
		ch:   make(chan Snapshot, 1),
	}
	p.mu.Lock()
	if p.subs[jobID] == nil {
		p.subs[jobID] = make(map[*subscriber]struct{})
	}
	p.subs[jobID][sub] = struct{}{}
	p.mu.Unlock()
	if p.gauge != nil {
		p.gauge.Inc()
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			if set, ok := p.subs[jobID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(p.subs, jobID)
				}
			}
			p.mu.Unlock()
			close(sub.ch)
			if p.gauge != nil {
				p.gauge.Dec()
			}
		})
	}
	return sub.ch, cancel
}

// Notify delivers a fresh job state to every subscriber of that job, gated
// per subscriber tier. It never blocks the caller.
func (p *Publisher) Notify(job analysis.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.subs[job.ID]
	if !ok {
		return
	}
	for sub := range set {
		snap := FromJob(job, sub.tier)
		if !snap.IsTerminal() {
			if snap.Progress < sub.lastProgress {
				continue
			}
			sub.lastProgress = snap.Progress
		}
		sub.push(snap)
	}
}

// push replaces any undelivered snapshot with the newer one.
func (s *subscriber) push(snap Snapshot) {
	for {
		select {
		case s.ch <- snap:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}
