package services

import (
	"sync"
	"time"

	"skyfleet/internal/core/domain"
)

// AdaptiveInterval computes the effective send interval for a camera stream
// from its base interval and the server-reported queue depth.
//
// A deep queue (more than 2 pending frames) slows the sender down
// proportionally; an empty queue speeds it up slightly to probe for
// headroom.
func AdaptiveInterval(base time.Duration, queueDepth int) time.Duration {
	if queueDepth < 0 {
		queueDepth = 0
	}

	switch {
	case queueDepth > 2:
		factor := 1.5 + 0.3*float64(queueDepth)
		return time.Duration(float64(base) * factor)
	case queueDepth == 0:
		return time.Duration(float64(base) * 0.8)
	default:
		return base
	}
}

// Pacer tracks per-camera send timing for one agent. Each camera owns an
// independent Pacer so congestion on one stream never slows the other.
type Pacer struct {
	camera domain.Camera
	base   time.Duration

	mu         sync.Mutex
	queueDepth int
	lastSend   time.Time
}

func NewPacer(camera domain.Camera, fps float64) *Pacer {
	if fps <= 0 {
		fps = 10
	}
	return &Pacer{
		camera: camera,
		base:   time.Duration(float64(time.Second) / fps),
	}
}

func (p *Pacer) Camera() domain.Camera { return p.camera }

// SetQueueDepth updates the server-reported backlog. Negative values are
// clamped to zero.
func (p *Pacer) SetQueueDepth(depth int) {
	if depth < 0 {
		depth = 0
	}
	p.mu.Lock()
	p.queueDepth = depth
	p.mu.Unlock()
}

func (p *Pacer) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queueDepth
}

// Interval returns the current effective send interval.
func (p *Pacer) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return AdaptiveInterval(p.base, p.queueDepth)
}

// ShouldSend reports whether enough time has elapsed since the last send
// for the current effective interval.
func (p *Pacer) ShouldSend(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastSend.IsZero() {
		return true
	}
	return now.Sub(p.lastSend) >= AdaptiveInterval(p.base, p.queueDepth)
}

// MarkSent records a frame send at the given time.
func (p *Pacer) MarkSent(now time.Time) {
	p.mu.Lock()
	p.lastSend = now
	p.mu.Unlock()
}
