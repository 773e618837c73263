package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tflitebridge/core"
)

// DefaultTimeout bounds how long Shutdown waits for in-flight invocations.
const DefaultTimeout = 30 * time.Second

// Manager composes a Tracker, a Registry and a SignalCounter.
//
//	m := shutdown.NewManager(ctx, logger)
//	m.Register("runtime", shutdown.PriorityRuntime, func(context.Context) error {
//		return rt.Close()
//	})
//	m.Start()
//	defer m.Shutdown()
//
//	err := m.Do(m.Context(), "invoke", func(ctx context.Context) error {
//		return rt.Invoke(ctx, h)
//	})
type Manager struct {
	logger  *zap.Logger
	timeout time.Duration
	exit    func(int)

	mu       sync.Mutex
	started  bool
	finished bool
	received os.Signal

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *Tracker
	registry *Registry
	signals  *SignalCounter
	sigChan  chan os.Signal
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout sets the drain timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// WithExitFunc replaces os.Exit for the forced path.
func WithExitFunc(exit func(int)) Option {
	return func(m *Manager) {
		m.exit = exit
	}
}

// NewManager returns a Manager whose context derives from parent.
func NewManager(parent context.Context, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	m := &Manager{
		logger:   logger,
		timeout:  DefaultTimeout,
		exit:     os.Exit,
		ctx:      ctx,
		cancel:   cancel,
		tracker:  NewTracker(),
		registry: NewRegistry(),
		sigChan:  make(chan os.Signal, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.signals = NewSignalCounter(2, func() {
		m.logger.Warn("Received second signal, forcing exit")
		m.exit(m.ExitCode(core.ExitCodeError))
	})
	return m
}

// Context is cancelled on the first signal.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup step.
func (m *Manager) Register(name string, priority int, fn Func) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("Registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority),
	)
}

// Start listens for SIGINT and SIGTERM. Repeated calls are no-ops.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range m.sigChan {
			m.Trigger(sig)
		}
	}()
}

// Trigger handles sig as if it had been delivered by the OS.
func (m *Manager) Trigger(sig os.Signal) {
	m.mu.Lock()
	if m.received == nil {
		m.received = sig
	}
	m.mu.Unlock()

	if m.signals.Increment() == 1 {
		m.logger.Info("Received shutdown signal, stopping",
			zap.String("signal", sig.String()),
		)
		m.cancel()
	}
}

// Signal returns the first signal received, or nil.
func (m *Manager) Signal() os.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

// ExitCode maps the first received signal to its conventional exit code,
// returning fallback when no signal arrived.
func (m *Manager) ExitCode(fallback int) int {
	switch m.Signal() {
	case os.Interrupt:
		return core.ExitCodeSIGINT
	case syscall.SIGTERM:
		return core.ExitCodeSIGTERM
	default:
		return fallback
	}
}

// Do runs fn as a tracked operation. It returns ErrClosed after Shutdown
// and the context error once a signal has arrived.
func (m *Manager) Do(ctx context.Context, name string, fn func(context.Context) error) error {
	if !m.tracker.Start() {
		m.logger.Debug("Operation rejected during shutdown", zap.String("operation", name))
		return ErrClosed
	}
	defer m.tracker.Done()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return m.ctx.Err()
	default:
	}
	return fn(ctx)
}

// Active returns the number of operations in flight.
func (m *Manager) Active() int64 {
	return m.tracker.Active()
}

// Shutdown drains in-flight operations and runs cleanup. It is idempotent.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return nil
	}
	m.finished = true
	started := m.started
	m.mu.Unlock()

	start := time.Now()
	m.tracker.Close()
	if err := m.tracker.Wait(m.timeout); err != nil {
		m.logger.Warn("Timeout waiting for in-flight operations",
			zap.Int64("remaining", m.tracker.Active()),
			zap.Duration("waited", time.Since(start)),
		)
	}

	remaining := m.timeout - time.Since(start)
	if remaining < time.Second {
		remaining = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), remaining)
	defer cancel()

	m.logger.Debug("Running cleanup", zap.Strings("handlers", m.registry.Names()))
	err := m.registry.Run(ctx)
	if err != nil {
		m.logger.Error("Shutdown completed with errors", zap.Error(err))
	}

	if started {
		signal.Stop(m.sigChan)
		close(m.sigChan)
	}
	m.cancel()
	return err
}
