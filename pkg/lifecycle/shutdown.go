// Package lifecycle provides graceful shutdown for serve mode: in-flight
// runs drain before the process exits and registered services close in
// order.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Closer is a service that needs cleanup at shutdown.
type Closer interface {
	Close() error
}

// ShutdownManager tracks in-flight work and coordinates shutdown.
type ShutdownManager struct {
	mu sync.Mutex

	drainTimeout time.Duration
	draining     bool

	inFlight      sync.WaitGroup
	inFlightCount int64

	closers []Closer
	done    chan struct{}
	logger  *slog.Logger
}

// NewShutdownManager creates a manager with the given drain timeout.
func NewShutdownManager(drainTimeout time.Duration, logger *slog.Logger) *ShutdownManager {
	if drainTimeout == 0 {
		drainTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ShutdownManager{
		drainTimeout: drainTimeout,
		done:         make(chan struct{}),
		logger:       logger,
	}
}

// RegisterCloser adds a service to be closed during shutdown. Closers run
// in registration order.
func (m *ShutdownManager) RegisterCloser(c Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closers = append(m.closers, c)
}

// StartRun marks the start of an in-flight pipeline run. Returns false if
// the process is draining and the run should be rejected.
func (m *ShutdownManager) StartRun() bool {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return false
	}
	m.inFlightCount++
	m.mu.Unlock()

	m.inFlight.Add(1)
	return true
}

// EndRun marks the end of an in-flight run.
func (m *ShutdownManager) EndRun() {
	m.inFlight.Done()

	m.mu.Lock()
	m.inFlightCount--
	m.mu.Unlock()
}

// InFlightCount returns the number of in-flight runs.
func (m *ShutdownManager) InFlightCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlightCount
}

// IsDraining reports whether shutdown has started.
func (m *ShutdownManager) IsDraining() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draining
}

// Shutdown drains in-flight runs, closes registered services, and
// releases Wait.
func (m *ShutdownManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return nil
	}
	m.draining = true
	m.mu.Unlock()

	m.logger.Info("shutdown.drain.start", "in_flight", m.InFlightCount())

	drained := make(chan struct{})
	go func() {
		m.inFlight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(m.drainTimeout):
		m.logger.Warn("shutdown.drain.timeout", "in_flight", m.InFlightCount())
	case <-ctx.Done():
	}

	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	close(m.done)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// Wait blocks until shutdown is complete.
func (m *ShutdownManager) Wait() {
	<-m.done
}

// HandleSignals triggers Shutdown on SIGINT/SIGTERM.
func (m *ShutdownManager) HandleSignals(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			m.logger.Info("shutdown.signal", "signal", sig.String())
			m.Shutdown(ctx)
		case <-ctx.Done():
		}
	}()
}

// RunWithSignalHandling runs fn with a context canceled on SIGINT/SIGTERM
// and waits up to 30 seconds for it to return after cancellation.
func RunWithSignalHandling(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- fn(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		slog.Info("shutdown.signal", "signal", sig.String())
		cancel()
		select {
		case err := <-errChan:
			return err
		case <-time.After(30 * time.Second):
			return fmt.Errorf("shutdown timeout")
		}
	}
}
