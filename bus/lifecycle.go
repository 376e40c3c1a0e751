// Package bus implements the parts shared by every peripheral context: the lifecycle state
// machine, the per context lock and the error taxonomy that platform results are mapped into.
package bus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"go.viam.com/hal/logging"
)

const (
	// DefaultTimeout bounds operations on a context that has not been given a timeout.
	DefaultTimeout = 1000 * time.Millisecond
	// DeinitTimeout is the fixed ceiling Deinit and the async mode switches wait for the lock,
	// whatever the configured timeout.
	DeinitTimeout = 1000 * time.Millisecond
)

// Config is implemented by the configuration of every peripheral kind.
type Config interface {
	Validate(path string) error
	// OperationTimeout is the default bound on lock waits and driver calls. Zero selects
	// DefaultTimeout.
	OperationTimeout() time.Duration
}

// Backend applies a configuration to the platform.
type Backend[C Config] interface {
	Configure(ctx context.Context, cfg C) error
}

// Installer is implemented by backends whose platform driver must be installed after it is
// configured. Install is only called when no driver is installed yet.
type Installer[C Config] interface {
	Install(ctx context.Context, cfg C) error
	Uninstall(ctx context.Context) error
}

// Attacher is implemented by backends that acquire a resource when their context is initialized.
type Attacher interface {
	Attach(ctx context.Context) error
}

// Detacher is implemented by backends that must release resources when their context is
// deinitialized. Detach runs under the context lock, before the driver is uninstalled, and may be
// called again if a later teardown step fails.
type Detacher interface {
	Detach(ctx context.Context) error
}

// Lifecycle is the state machine and lock of one peripheral context. Kind packages embed it and
// run their data operations through Do.
type Lifecycle[C Config] struct {
	name    string
	backend Backend[C]
	logger  logging.Logger

	// transition serializes Init and Deinit. Data operations never take it.
	transition sync.Mutex

	state   atomic.Int32
	lock    atomic.Pointer[Lock]
	timeout atomic.Duration
	config  atomic.Pointer[C]
}

// NewLifecycle returns an uninitialized Lifecycle named name (for example "i2c0") driving
// backend.
func NewLifecycle[C Config](name string, backend Backend[C], logger logging.Logger) *Lifecycle[C] {
	if logger == nil {
		logger = logging.Global().Sublogger(name)
	}
	l := &Lifecycle[C]{name: name, backend: backend, logger: logger}
	l.timeout.Store(DefaultTimeout)
	return l
}

// Name returns the context name.
func (l *Lifecycle[C]) Name() string {
	return l.name
}

// Logger returns the context logger.
func (l *Lifecycle[C]) Logger() logging.Logger {
	return l.logger
}

// State returns the current state.
func (l *Lifecycle[C]) State() State {
	return State(l.state.Load())
}

// Timeout returns the operational timeout from the last successful SetConfig.
func (l *Lifecycle[C]) Timeout() time.Duration {
	return l.timeout.Load()
}

// Config returns the last configuration applied successfully.
func (l *Lifecycle[C]) Config() (C, bool) {
	cfg := l.config.Load()
	if cfg == nil {
		var zero C
		return zero, false
	}
	return *cfg, true
}

func (l *Lifecycle[C]) op(name string) string {
	return l.name + " " + name
}

// Init creates the context lock and moves the context to Initialized. Calling it on an
// initialized context does nothing.
func (l *Lifecycle[C]) Init(ctx context.Context) error {
	if l == nil {
		return NewError("init", InvalidArgument)
	}
	l.transition.Lock()
	defer l.transition.Unlock()

	if l.State() != Uninitialized {
		return nil
	}
	if attacher, ok := l.backend.(Attacher); ok {
		if err := attacher.Attach(ctx); err != nil {
			return Map(l.op("init"), err)
		}
	}

	l.timeout.Store(DefaultTimeout)
	l.lock.Store(NewLock())
	l.state.Store(int32(Initialized))
	l.logger.CDebugw(ctx, "initialized", "bus", l.name)
	return nil
}

// Deinit uninstalls the driver and returns the context to Uninitialized. It waits at most
// DeinitTimeout for the lock. If teardown fails the context keeps its state so the call can be
// retried.
func (l *Lifecycle[C]) Deinit(ctx context.Context) error {
	if l == nil {
		return NewError("deinit", InvalidArgument)
	}
	op := l.op("deinit")
	l.transition.Lock()
	defer l.transition.Unlock()

	if l.State() == Uninitialized {
		return nil
	}
	lock := l.lock.Load()
	if err := lock.Acquire(ctx, DeinitTimeout); err != nil {
		return Map(op, err)
	}

	if err := l.teardown(ctx); err != nil {
		lock.Release()
		l.logger.Warnw("teardown failed, keeping state", "bus", l.name, "state", l.State(), "error", err)
		return Map(op, err)
	}

	// State is cleared before the lock is handed back so a woken waiter never sees an initialized
	// context whose lock is going away.
	l.state.Store(int32(Uninitialized))
	l.lock.Store(nil)
	l.config.Store(nil)
	lock.Release()
	lock.Destroy()
	l.logger.CDebugw(ctx, "deinitialized", "bus", l.name)
	return nil
}

func (l *Lifecycle[C]) teardown(ctx context.Context) error {
	if detacher, ok := l.backend.(Detacher); ok {
		if err := detacher.Detach(ctx); err != nil {
			return err
		}
	}
	if l.State() != DriverInstalled {
		return nil
	}
	installer, ok := l.backend.(Installer[C])
	if !ok {
		return nil
	}
	return installer.Uninstall(ctx)
}

// SetConfig configures the platform and installs its driver. The context is marked configured
// only if both steps succeed. Reconfiguring a configured context is allowed and does not install
// the driver a second time.
func (l *Lifecycle[C]) SetConfig(ctx context.Context, cfg C) error {
	if l == nil {
		return NewError("set config", InvalidArgument)
	}
	if err := cfg.Validate(l.name); err != nil {
		return &Error{Kind: InvalidArgument, Op: l.op("set config"), Err: err}
	}
	timeout := cfg.OperationTimeout()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return l.WithLock(ctx, "set config", timeout, func(ctx context.Context, state State) error {
		if err := l.backend.Configure(ctx, cfg); err != nil {
			return err
		}
		next := Configured
		if installer, ok := l.backend.(Installer[C]); ok {
			if state != DriverInstalled {
				if err := installer.Install(ctx, cfg); err != nil {
					return err
				}
			}
			next = DriverInstalled
		}
		l.config.Store(&cfg)
		l.timeout.Store(timeout)
		l.state.Store(int32(next))
		l.logger.CDebugw(ctx, "configured", "bus", l.name, "state", next, "timeout", timeout)
		return nil
	})
}

// GetConfig is not supported: platform drivers offer no readback of their configuration.
func (l *Lifecycle[C]) GetConfig() (C, error) {
	var zero C
	if l == nil {
		return zero, NewError("get config", InvalidArgument)
	}
	return zero, NewError(l.op("get config"), Unsupported)
}

// Op returns the full name of an operation on this context, as used in its errors.
func (l *Lifecycle[C]) Op(name string) string {
	return l.op(name)
}

// Ready checks the preconditions of a data operation without touching the platform.
func (l *Lifecycle[C]) Ready(name string) error {
	if l == nil {
		return NewError(name, InvalidArgument)
	}
	op := l.op(name)
	switch state := l.State(); {
	case state == Uninitialized:
		return NewError(op, NotInitialized)
	case !state.IsConfigured():
		return NewError(op, NotConfigured)
	default:
		return nil
	}
}

// WithLock runs fn holding the context lock, waiting at most timeout for it. fn gets a context
// bounded by the same timeout and the state observed under the lock; its error is mapped for the
// named operation. The context must be initialized. A non-positive timeout is resolved as in Do.
func (l *Lifecycle[C]) WithLock(
	ctx context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context, state State) error,
) error {
	if l == nil {
		return NewError(name, InvalidArgument)
	}
	op := l.op(name)
	lock := l.lock.Load()
	if lock == nil || l.State() == Uninitialized {
		return NewError(op, NotInitialized)
	}
	if timeout <= 0 {
		timeout = l.callTimeout(ctx)
	}
	if err := lock.Acquire(ctx, timeout); err != nil {
		return Map(op, err)
	}
	defer lock.Release()

	// Deinit may have finished while this call waited.
	state := l.State()
	if state == Uninitialized {
		return NewError(op, NotInitialized)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := fn(callCtx, state)
	if err != nil {
		l.logger.CDebugw(ctx, "operation failed", "op", op, "error", err)
	}
	return Map(op, err)
}

// callTimeout is the per call timeout: the time left before the caller's deadline if it set one,
// otherwise the configured timeout.
func (l *Lifecycle[C]) callTimeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}
	return l.Timeout()
}

// Do runs exactly one platform call for a data operation. The preconditions are checked before
// the lock is taken and again under it. A non-positive timeout selects the caller's deadline, or
// the configured timeout when ctx has none.
func (l *Lifecycle[C]) Do(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if err := l.Ready(name); err != nil {
		return err
	}
	return l.WithLock(ctx, name, timeout, func(ctx context.Context, state State) error {
		if !state.IsConfigured() {
			return NewError(l.op(name), NotConfigured)
		}
		return fn(ctx)
	})
}
