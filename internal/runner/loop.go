// Package runner contains the background workers of a finance plugin: the
// payment runner that charges users and the stop service runner that pauses
// and resumes the resources of users who did or did not pay.
package runner

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/logger"
)

// errUserRemoved is returned for a user that left the registry while the
// runner waited for its lock. Sweeps skip such users quietly.
var errUserRemoved = ierr.NewError("user removed while waiting for its lock").
	WithHint("The user is no longer managed by the finance service").
	Mark(ierr.ErrNotFound)

// Runner is a background worker driven by the plugin
type Runner interface {
	// Run blocks until Stop is called or ctx is cancelled
	Run(ctx context.Context)
	// Ready is closed once Run started
	Ready() <-chan struct{}
	// Stop asks the runner to exit at its next cycle boundary
	Stop()
	IsActive() bool
}

// loop runs cycle every interval. Stop is honoured between cycles, an in
// flight cycle always completes.
type loop struct {
	name     string
	interval time.Duration
	cycle    func(ctx context.Context)
	logger   *logger.Logger

	ready    chan struct{}
	stop     chan struct{}
	stopping atomic.Bool
	active   atomic.Bool

	readyOnce sync.Once
	stopOnce  sync.Once
}

func newLoop(name string, interval time.Duration, cycle func(ctx context.Context), logger *logger.Logger) *loop {
	return &loop{
		name:     name,
		interval: interval,
		cycle:    cycle,
		logger:   logger.With("runner", name),
		ready:    make(chan struct{}),
		stop:     make(chan struct{}),
	}
}

func (l *loop) Run(ctx context.Context) {
	l.active.Store(true)
	defer l.active.Store(false)
	l.readyOnce.Do(func() { close(l.ready) })

	l.logger.Infow("runner started", "interval", l.interval.String())
	defer l.logger.Infow("runner stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		case <-timer.C:
		}

		if l.stopping.Load() {
			return
		}
		l.runCycle(ctx)
		timer.Reset(l.interval)
	}
}

func (l *loop) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Errorw("panic in runner cycle",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	l.cycle(ctx)
}

func (l *loop) Ready() <-chan struct{} {
	return l.ready
}

func (l *loop) Stop() {
	l.stopping.Store(true)
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *loop) IsActive() bool {
	return l.active.Load()
}

// sweep visits every user of a plugin list. A list modified during the sweep
// abandons it, the next cycle starts over.
func sweep[T comparable](ctx context.Context, log *logger.Logger, list iterable[T], visit func(T)) {
	id := list.StartIterating()
	defer func() {
		if err := list.StopIterating(id); err != nil {
			log.Warnw("failed to release list consumer", "error", err)
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		item, ok, err := list.GetNext(id)
		if err != nil {
			log.Debugw("abandoning sweep", "error", err)
			return
		}
		if !ok {
			return
		}
		visit(item)
	}
}

type iterable[T comparable] interface {
	StartIterating() int
	GetNext(id int) (T, bool, error)
	StopIterating(id int) error
}
