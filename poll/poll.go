// Package poll runs a factory function on a schedule with exponential
// backoff, standby suspension and on-demand refresh.
package poll

import (
	"context"
	"sync"
	"time"

	"github.com/agentuity/go-terminals/logger"
	"github.com/cenkalti/backoff/v5"
	"github.com/cockroachdb/errors"
)

// ErrDisposed completes ticks that were pending or in flight when the poll was disposed.
var ErrDisposed = errors.New("poll disposed")

const (
	DefaultInterval    = 10 * time.Second
	DefaultMaxInterval = 300 * time.Second
	DefaultMultiplier  = 2.0
)

// Factory is invoked on every tick.
type Factory func(ctx context.Context) error

// Phase describes what the poll is currently doing.
type Phase int

const (
	PhaseConstructed Phase = iota
	PhaseScheduled
	PhaseRunning
	PhaseStandby
	PhaseDisposed
)

func (p Phase) String() string {
	switch p {
	case PhaseConstructed:
		return "constructed"
	case PhaseScheduled:
		return "scheduled"
	case PhaseRunning:
		return "running"
	case PhaseStandby:
		return "standby"
	case PhaseDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

type config struct {
	name        string
	interval    time.Duration
	maxInterval time.Duration
	multiplier  float64
	jitter      float64
	standby     Standby
	logger      logger.Logger
}

type Option func(*config)

// WithName labels the poll in log output.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithInterval sets the base interval between ticks. Defaults to 10 seconds.
func WithInterval(d time.Duration) Option {
	return func(c *config) { c.interval = d }
}

// WithMaxInterval sets the backoff ceiling. Defaults to 300 seconds.
func WithMaxInterval(d time.Duration) Option {
	return func(c *config) { c.maxInterval = d }
}

// WithMultiplier sets the backoff growth factor. Defaults to 2.
func WithMultiplier(m float64) Option {
	return func(c *config) { c.multiplier = m }
}

// WithJitter randomizes each backoff interval by the given factor (0 to 1).
func WithJitter(f float64) Option {
	return func(c *config) { c.jitter = f }
}

// WithStandby sets the standby predicate. Defaults to Never.
func WithStandby(s Standby) Option {
	return func(c *config) { c.standby = s }
}

func WithLogger(log logger.Logger) Option {
	return func(c *config) { c.logger = log }
}

// Poll repeatedly invokes a Factory. A successful tick schedules the next one
// after the base interval; a failed tick grows the interval by the multiplier
// up to the ceiling. Refresh runs a tick immediately without touching the
// backoff state.
type Poll struct {
	factory Factory
	cfg     config
	logger  logger.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	refresh chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	mu       sync.Mutex
	phase    Phase
	current  *Tick
	next     *Tick
	backoff  *backoff.ExponentialBackOff
	delay    time.Duration
	disposed bool
}

// New returns a poll that is not yet started. Cancelling parent disposes it.
func New(parent context.Context, factory Factory, opts ...Option) *Poll {
	cfg := config{
		name:        "poll",
		interval:    DefaultInterval,
		maxInterval: DefaultMaxInterval,
		multiplier:  DefaultMultiplier,
		standby:     Never,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxInterval < cfg.interval {
		cfg.maxInterval = cfg.interval
	}
	if cfg.multiplier < 1 {
		cfg.multiplier = 1
	}
	if cfg.standby == nil {
		cfg.standby = Never
	}
	log := cfg.logger
	if log == nil {
		log = logger.NewConsoleLogger()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.interval
	bo.MaxInterval = cfg.maxInterval
	bo.Multiplier = cfg.multiplier
	bo.RandomizationFactor = cfg.jitter
	resetBackoff(bo)

	ctx, cancel := context.WithCancel(parent)
	return &Poll{
		factory: factory,
		cfg:     cfg,
		logger:  log.WithPrefix("[" + cfg.name + "]"),
		ctx:     ctx,
		cancel:  cancel,
		refresh: make(chan struct{}, 1),
		next:    newTick(),
		backoff: bo,
		delay:   cfg.interval,
	}
}

// Start begins polling with an immediate first tick, which it returns.
// Calling Start again returns the next pending tick.
func (p *Poll) Start() *Tick {
	p.mu.Lock()
	t := p.next
	disposed := p.disposed
	p.mu.Unlock()
	if disposed {
		return t
	}
	p.once.Do(func() {
		p.mu.Lock()
		p.phase = PhaseScheduled
		p.mu.Unlock()
		p.wg.Add(1)
		go p.run()
	})
	return t
}

// Refresh requests an out-of-cycle tick and returns it. Standby is ignored
// for refreshed ticks. An unstarted poll is started.
func (p *Poll) Refresh() *Tick {
	p.mu.Lock()
	t := p.next
	started := p.phase != PhaseConstructed
	p.mu.Unlock()
	if !started {
		return p.Start()
	}
	select {
	case p.refresh <- struct{}{}:
	default:
	}
	return t
}

// Tick returns the next tick to complete: the in-flight one if a tick is
// running, otherwise the pending one.
func (p *Poll) Tick() *Tick {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		return p.current
	}
	return p.next
}

// Phase reports the current phase.
func (p *Poll) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Delay reports the interval scheduled after the last completed tick.
func (p *Poll) Delay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delay
}

// IsDisposed reports whether Dispose was called.
func (p *Poll) IsDisposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposed
}

// Dispose stops the schedule. Pending ticks complete with ErrDisposed; a
// tick already running is allowed to finish but also reports ErrDisposed.
// Dispose does not block and may be called from within the factory.
func (p *Poll) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	p.phase = PhaseDisposed
	next := p.next
	p.mu.Unlock()

	p.cancel()
	next.complete(ErrDisposed)
	p.logger.Trace("disposed")
}

// Wait blocks until the scheduling goroutine and any in-flight tick have exited.
func (p *Poll) Wait() {
	p.wg.Wait()
}

func (p *Poll) run() {
	defer p.wg.Done()
	timer := time.NewTimer(0)
	defer timer.Stop()
	for first := true; ; first = false {
		refreshed := false
		select {
		case <-p.ctx.Done():
			p.Dispose()
			return
		case <-p.refresh:
			refreshed = true
			timer.Stop()
		case <-timer.C:
		}
		if !refreshed && !first && p.cfg.standby() {
			p.mu.Lock()
			if !p.disposed {
				p.phase = PhaseStandby
			}
			delay := p.delay
			p.mu.Unlock()
			p.logger.Trace("standby, next check in %s", delay)
			timer.Reset(delay)
			continue
		}
		err := p.execute()
		if errors.Is(err, ErrDisposed) {
			return
		}
		timer.Reset(p.schedule(err))
	}
}

func (p *Poll) execute() error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return ErrDisposed
	}
	t := p.next
	p.current = t
	p.next = newTick()
	p.phase = PhaseRunning
	p.mu.Unlock()

	err := p.invoke()

	p.mu.Lock()
	p.current = nil
	disposed := p.disposed
	if !disposed {
		p.phase = PhaseScheduled
	}
	p.mu.Unlock()

	if disposed {
		t.complete(ErrDisposed)
		return ErrDisposed
	}
	if err != nil {
		p.logger.Debug("tick failed: %v", err)
	}
	t.complete(err)
	return err
}

func (p *Poll) invoke() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("poll factory panicked: %v", r)
		}
	}()
	// an in-flight tick is allowed to finish after Dispose
	return p.factory(context.WithoutCancel(p.ctx))
}

// schedule computes the delay before the next tick from the result of the
// last one.
func (p *Poll) schedule(err error) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		resetBackoff(p.backoff)
		p.delay = p.cfg.interval
	} else {
		p.delay = p.backoff.NextBackOff()
	}
	return p.delay
}

// resetBackoff rewinds bo so the next failure waits interval*multiplier.
func resetBackoff(bo *backoff.ExponentialBackOff) {
	bo.Reset()
	bo.NextBackOff()
}
