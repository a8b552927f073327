// Package terminal keeps a local, polled view of the terminal sessions
// running on a server and hands out connection handles to them.
package terminal

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/agentuity/go-terminals/config"
	"github.com/agentuity/go-terminals/event"
	"github.com/agentuity/go-terminals/logger"
	"github.com/agentuity/go-terminals/poll"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// Standby selects when the manager suspends background polling.
type Standby string

const (
	StandbyNever      Standby = config.StandbyNever
	StandbyWhenHidden Standby = config.StandbyWhenHidden
)

type managerOptions struct {
	settings        *config.Settings
	standby         Standby
	visibility      poll.Visibility
	logger          logger.Logger
	unavailable     []int
	pollInterval    time.Duration
	maxPollInterval time.Duration
}

type ManagerOption func(*managerOptions)

// WithSettings sets the settings passed to every transport call. Defaults to config.Default().
func WithSettings(s *config.Settings) ManagerOption {
	return func(o *managerOptions) { o.settings = s }
}

// WithStandby overrides the standby policy from the settings. The default
// is StandbyWhenHidden, which only has an effect together with WithVisibility.
func WithStandby(s Standby) ManagerOption {
	return func(o *managerOptions) { o.standby = s }
}

// WithVisibility reports whether the consumer is hidden, for StandbyWhenHidden.
func WithVisibility(v poll.Visibility) ManagerOption {
	return func(o *managerOptions) { o.visibility = v }
}

func WithLogger(log logger.Logger) ManagerOption {
	return func(o *managerOptions) { o.logger = log }
}

// WithServiceUnavailableStatuses sets the response statuses that publish a
// ConnectionFailure. Overrides the settings; defaults to 503.
func WithServiceUnavailableStatuses(statuses ...int) ManagerOption {
	return func(o *managerOptions) { o.unavailable = statuses }
}

// WithPollInterval overrides the base poll interval from the settings.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(o *managerOptions) { o.pollInterval = d }
}

// WithMaxPollInterval overrides the backoff ceiling from the settings.
func WithMaxPollInterval(d time.Duration) ManagerOption {
	return func(o *managerOptions) { o.maxPollInterval = d }
}

// Manager keeps the sorted names of the running terminals in sync with the
// server, tracks the connections it has handed out and publishes changes.
//
// The cached names and tracked connections are guarded by one mutex; every
// callback (connection disposal, subscribers) runs with it released.
type Manager struct {
	transport   Transport
	settings    *config.Settings
	logger      logger.Logger
	unavailable []int
	poll        *poll.Poll
	stop        func() bool

	runningChanged    *event.Signal[[]Model]
	connectionFailure *event.Signal[error]

	ready    chan struct{}
	readyErr error

	mu          sync.Mutex
	state       State
	names       []string
	connections map[string]*Connection
}

// NewManager starts polling transport for running terminals. When the
// transport reports terminals as unavailable the manager never polls and
// WaitReady fails with ErrCapabilityUnavailable. Cancelling ctx disposes the manager.
func NewManager(ctx context.Context, transport Transport, opts ...ManagerOption) *Manager {
	o := managerOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.settings == nil {
		o.settings = config.Default()
	}
	if o.logger == nil {
		o.logger = logger.NewConsoleLogger()
	}
	if o.standby == "" {
		o.standby = Standby(o.settings.Standby)
	}
	if o.unavailable == nil {
		o.unavailable = o.settings.ServiceUnavailable
	}
	if o.pollInterval <= 0 {
		o.pollInterval = o.settings.PollInterval.Duration()
	}
	if o.maxPollInterval <= 0 {
		o.maxPollInterval = o.settings.MaxPollInterval.Duration()
	}

	log := o.logger.WithPrefix("[terminals]")
	m := &Manager{
		transport:         transport,
		settings:          o.settings,
		logger:            log,
		unavailable:       slices.Clone(o.unavailable),
		runningChanged:    event.New[[]Model](log),
		connectionFailure: event.New[error](log),
		ready:             make(chan struct{}),
		state:             StateInitializing,
		connections:       make(map[string]*Connection),
	}

	if !transport.IsAvailable() {
		m.state = StateUnavailable
		m.readyErr = ErrCapabilityUnavailable
		close(m.ready)
		log.Debug("terminals are not available on %s", o.settings.BaseURL)
		return m
	}

	var standby poll.Standby = poll.Never
	if o.standby != StandbyNever {
		standby = poll.WhenHidden(o.visibility)
	}
	popts := []poll.Option{
		poll.WithName("terminals"),
		poll.WithLogger(o.logger),
		poll.WithStandby(standby),
	}
	if o.pollInterval > 0 {
		popts = append(popts, poll.WithInterval(o.pollInterval))
	}
	if o.maxPollInterval > 0 {
		popts = append(popts, poll.WithMaxInterval(o.maxPollInterval))
	}
	m.poll = poll.New(context.Background(), m.requestRunning, popts...)
	m.stop = context.AfterFunc(ctx, m.Dispose)

	first := m.poll.Start()
	go m.awaitFirstTick(first)
	return m
}

func (m *Manager) awaitFirstTick(first *poll.Tick) {
	<-first.Done()
	m.mu.Lock()
	if m.state == StateInitializing {
		m.state = StateReady
	} else {
		m.readyErr = ErrDisposed
	}
	m.mu.Unlock()
	if err := first.Err(); err != nil && !errors.Is(err, poll.ErrDisposed) {
		m.logger.Debug("first refresh failed: %v", err)
	}
	close(m.ready)
}

// Settings returns the settings passed to every transport call.
func (m *Manager) Settings() *config.Settings {
	return m.settings
}

// IsAvailable reports whether the server provides terminals.
func (m *Manager) IsAvailable() bool {
	return m.transport.IsAvailable()
}

// State reports the readiness state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsReady reports whether the first poll has completed, whatever its outcome.
func (m *Manager) IsReady() bool {
	return m.State() == StateReady
}

// IsDisposed reports whether Dispose was called.
func (m *Manager) IsDisposed() bool {
	return m.State() == StateDisposed
}

// Ready is closed once the first poll has completed, or immediately when
// terminals are unavailable. Check WaitReady for the outcome.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// WaitReady blocks until the manager is ready. It returns
// ErrCapabilityUnavailable when terminals are unavailable and ErrDisposed
// when the manager was disposed before becoming ready.
func (m *Manager) WaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return m.readyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunningChanged fires with the full sorted model list whenever it changes.
func (m *Manager) RunningChanged() *event.Signal[[]Model] {
	return m.runningChanged
}

// ConnectionFailure fires when polling finds the service unreachable.
func (m *Manager) ConnectionFailure() *event.Signal[error] {
	return m.connectionFailure
}

// Running yields a snapshot of the cached models taken when iteration starts.
func (m *Manager) Running() iter.Seq[Model] {
	return func(yield func(Model) bool) {
		m.mu.Lock()
		names := slices.Clone(m.names)
		m.mu.Unlock()
		for _, name := range names {
			if !yield(Model{Name: name}) {
				return
			}
		}
	}
}

// RefreshRunning polls the server now and waits for the result.
func (m *Manager) RefreshRunning(ctx context.Context) error {
	switch m.State() {
	case StateUnavailable:
		return ErrCapabilityUnavailable
	case StateDisposed:
		return ErrDisposed
	}
	err := m.poll.Refresh().Wait(ctx)
	if errors.Is(err, poll.ErrDisposed) {
		return ErrDisposed
	}
	return err
}

// refreshAdvisory requests a poll whose failure only gets logged.
func (m *Manager) refreshAdvisory(reason string) {
	if m.poll == nil || m.IsDisposed() {
		return
	}
	tick := m.poll.Refresh()
	go func() {
		<-tick.Done()
		if err := tick.Err(); err != nil && !errors.Is(err, poll.ErrDisposed) {
			m.logger.Debug("refresh after %s failed: %v", reason, err)
		}
	}()
}

// requestRunning is the poll factory: it lists the running terminals and
// reconciles the result with the cache.
func (m *Manager) requestRunning(ctx context.Context) error {
	models, err := m.transport.ListRunning(ctx, m.settings)
	if err != nil {
		if !m.IsDisposed() && IsServiceUnavailable(err, m.unavailable...) {
			m.logger.Warn("terminal service unavailable: %v", err)
			m.connectionFailure.Publish(err)
		}
		return errors.Wrap(err, "listing running terminals")
	}

	names := make([]string, len(models))
	for i, model := range models {
		names[i] = model.Name
	}
	slices.Sort(names)

	m.mu.Lock()
	if m.state == StateDisposed {
		m.mu.Unlock()
		return nil
	}
	if slices.Equal(names, m.names) {
		m.mu.Unlock()
		return nil
	}
	m.names = names
	var stale []*Connection
	for _, conn := range m.connections {
		if _, found := slices.BinarySearch(names, conn.Name()); !found {
			stale = append(stale, conn)
		}
	}
	m.mu.Unlock()

	m.logger.Debug("running terminals changed: %v", names)
	for _, conn := range stale {
		conn.Dispose()
	}
	m.runningChanged.Publish(modelsFromNames(names))
	return nil
}

// ConnectTo returns a connection to an existing terminal. The connection is
// tracked immediately; when the name is not cached yet a refresh verifies
// it in the background. Errors are only returned for a missing name or an
// unusable manager.
func (m *Manager) ConnectTo(opts ConnectOptions) (*Connection, error) {
	if opts.Model.Name == "" {
		return nil, ErrMissingName
	}
	if opts.Settings == nil {
		opts.Settings = m.settings
	}
	switch m.State() {
	case StateUnavailable:
		return nil, ErrCapabilityUnavailable
	case StateDisposed:
		return nil, ErrDisposed
	}

	conn := newConnection(opts, m.logger, m.Shutdown)
	conn.Disposed().Subscribe(m.onDisposed)

	m.mu.Lock()
	if m.state == StateDisposed {
		m.mu.Unlock()
		conn.Dispose()
		return nil, ErrDisposed
	}
	m.connections[conn.ID()] = conn
	_, known := slices.BinarySearch(m.names, opts.Model.Name)
	m.mu.Unlock()

	if !known {
		m.refreshAdvisory("connecting to " + opts.Model.Name)
	}
	return conn, nil
}

func (m *Manager) onDisposed(conn *Connection) {
	m.mu.Lock()
	delete(m.connections, conn.ID())
	m.mu.Unlock()
	m.refreshAdvisory("disposing " + conn.Name())
}

// Connections returns the tracked, not yet disposed connections.
func (m *Manager) Connections() []*Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	slices.SortFunc(conns, func(a, b *Connection) int {
		return cmp.Or(strings.Compare(a.Name(), b.Name()), strings.Compare(a.ID(), b.ID()))
	})
	return conns
}

// StartNew creates a terminal, refreshes the cache so it includes it and
// returns a connection to it.
func (m *Manager) StartNew(ctx context.Context, opts StartOptions) (*Connection, error) {
	switch m.State() {
	case StateUnavailable:
		return nil, ErrCapabilityUnavailable
	case StateDisposed:
		return nil, ErrDisposed
	}
	model, err := m.transport.StartNew(ctx, opts, m.settings)
	if err != nil {
		return nil, errors.Wrap(err, "starting terminal")
	}
	if err := m.RefreshRunning(ctx); err != nil {
		return nil, err
	}
	return m.ConnectTo(ConnectOptions{Model: model})
}

// Shutdown deletes the named terminal and refreshes the cache. Connections
// to it are disposed by the refresh once the server confirms it is gone.
func (m *Manager) Shutdown(ctx context.Context, name string) error {
	switch m.State() {
	case StateUnavailable:
		return ErrCapabilityUnavailable
	case StateDisposed:
		return ErrDisposed
	}
	if err := m.transport.Shutdown(ctx, name, m.settings); err != nil {
		return errors.Wrapf(err, "shutting down terminal %q", name)
	}
	return m.RefreshRunning(ctx)
}

// ShutdownAll deletes every running terminal. It refreshes first, deletes
// the names found concurrently and refreshes again; a terminal started by
// someone else between the two refreshes may survive.
func (m *Manager) ShutdownAll(ctx context.Context) error {
	if err := m.RefreshRunning(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	names := slices.Clone(m.names)
	m.mu.Unlock()

	var g errgroup.Group
	for _, name := range names {
		g.Go(func() error {
			if err := m.transport.Shutdown(ctx, name, m.settings); err != nil {
				return errors.Wrapf(err, "shutting down terminal %q", name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return m.RefreshRunning(ctx)
}

// Dispose stops polling, clears the cache and disposes every tracked
// connection. It is idempotent and safe to call from a subscriber.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.state == StateDisposed {
		m.mu.Unlock()
		return
	}
	m.state = StateDisposed
	m.names = nil
	conns := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	clear(m.connections)
	m.mu.Unlock()

	if m.stop != nil {
		m.stop()
	}
	if m.poll != nil {
		m.poll.Dispose()
	}
	for _, conn := range conns {
		conn.Dispose()
	}
	m.runningChanged.Close()
	m.connectionFailure.Close()
	m.logger.Debug("disposed")
}
