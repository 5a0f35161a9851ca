package mailstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/elasticmail/mailstore/blob"
	"github.com/elasticmail/mailstore/msgid"
	"github.com/elasticmail/mailstore/store"
	"github.com/elasticmail/mailstore/throttle"
)

// ServiceHealth provides health and state information about the service.
type ServiceHealth interface {
	// IsConnected returns true if the service is connected and ready.
	IsConnected() bool
}

// Service manages the mail storage system (server-side).
// It handles connections to storage and creates per-mailbox clients.
//
// Composed of:
//   - ServiceHealth: Health and state queries (IsConnected)
type Service interface {
	ServiceHealth

	// Connect establishes connections to storage backends.
	Connect(ctx context.Context) error
	// Close closes all connections.
	Close(ctx context.Context) error
	// Mailbox returns a client for the given mailbox.
	// The returned client shares the service's connections.
	Mailbox(mailboxID string) Mailbox
	// CreateMailbox provisions a mailbox: the account marker row plus the
	// reserved label set. Returns ErrMailboxExists if already provisioned.
	CreateMailbox(ctx context.Context, mailboxID string) error
	// DeleteMailbox removes a mailbox and everything it owns: blobs,
	// metadata rows, label indexes, counters, label definitions, and the
	// account marker. Idempotent; a partially deleted mailbox can be
	// deleted again to finish the cascade.
	DeleteMailbox(ctx context.Context, mailboxID string) error
}

// Connection states for the service.
const (
	stateDisconnected int32 = 0
	stateConnecting   int32 = 1
	stateConnected    int32 = 2
)

// service is the default implementation of Service.
type service struct {
	store    store.Store
	blobs    *blob.Profiles
	logger   *slog.Logger
	opts     *options
	state    int32 // stateDisconnected, stateConnecting, or stateConnected
	otel     *otelInstrumentation
	gen      *msgid.Generator
	limiter  *throttle.Limiter
	maintSem *semaphore.Weighted // Limits concurrent purge/scrub/delete-mailbox runs
}

// NewService creates a new mailstore service.
// Call Connect() to establish connections to backends.
func NewService(opts ...Option) (Service, error) {
	o := newOptions(opts...)

	if o.store == nil {
		return nil, ErrStoreRequired
	}
	if len(o.blobs) == 0 {
		return nil, ErrBlobStoreRequired
	}
	if _, ok := o.blobs[o.defaultProfile]; !ok {
		return nil, fmt.Errorf("%w: default profile %q not registered", ErrBlobStoreRequired, o.defaultProfile)
	}

	// Initialize OTel instrumentation
	otelInstr, err := newOtelInstrumentation(o)
	if err != nil {
		return nil, fmt.Errorf("init otel: %w", err)
	}

	limiter, err := throttle.New(o.opsPerWindow, o.window)
	if err != nil {
		return nil, fmt.Errorf("init throttle: %w", err)
	}

	return &service{
		store:    o.store,
		blobs:    blob.NewProfiles(o.blobs),
		logger:   o.logger,
		opts:     o,
		otel:     otelInstr,
		gen:      msgid.NewGenerator(),
		limiter:  limiter,
		maintSem: semaphore.NewWeighted(int64(o.maxConcurrentMaintenance)),
	}, nil
}

// IsConnected returns true if the service is connected and ready.
func (s *service) IsConnected() bool {
	return atomic.LoadInt32(&s.state) == stateConnected
}

// Connect establishes connections to storage backends.
func (s *service) Connect(ctx context.Context) error {
	// Use three-state to prevent Mailbox() clients from seeing partial
	// initialization: stateDisconnected -> stateConnecting -> stateConnected
	if !atomic.CompareAndSwapInt32(&s.state, stateDisconnected, stateConnecting) {
		return ErrAlreadyConnected
	}

	// Reset to disconnected on failure, set to connected on success
	success := false
	defer func() {
		if success {
			atomic.StoreInt32(&s.state, stateConnected)
		} else {
			atomic.StoreInt32(&s.state, stateDisconnected)
		}
	}()

	if err := s.store.Connect(ctx); err != nil {
		return fmt.Errorf("connect store: %w", err)
	}

	success = true
	s.logger.Info("mailstore service connected")
	return nil
}

// Close closes connections to storage backends.
func (s *service) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, stateConnected, stateDisconnected) {
		return nil
	}

	var errs []error

	// Wait for in-flight maintenance runs to finish. New runs cannot start
	// because checkConnected fails once the state flips.
	if err := s.maintSem.Acquire(ctx, int64(s.opts.maxConcurrentMaintenance)); err != nil {
		s.logger.Warn("timeout waiting for maintenance runs, proceeding with shutdown", "error", err)
		errs = append(errs, fmt.Errorf("graceful shutdown: %w", err))
	} else {
		s.maintSem.Release(int64(s.opts.maxConcurrentMaintenance))
	}

	if err := s.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	return errors.Join(errs...)
}

// Mailbox returns a client for the given mailbox.
func (s *service) Mailbox(mailboxID string) Mailbox {
	return &mailbox{
		id:      mailboxID,
		service: s,
		validID: isValidMailboxID(mailboxID),
	}
}

// checkConnected verifies the service is ready for operations.
func (s *service) checkConnected() error {
	if atomic.LoadInt32(&s.state) != stateConnected {
		return ErrNotConnected
	}
	return nil
}

// isValidMailboxID checks if a mailbox id is valid.
// Valid ids are non-empty and contain only safe characters. Blob names
// and storage keys embed the mailbox id, so characters with structural
// meaning there are rejected.
func isValidMailboxID(id string) bool {
	if id == "" {
		return false
	}
	// Allow alphanumeric, hyphen, underscore, period, at-sign, plus.
	// Disallow: *, :, /, \, ?, spaces, and control characters.
	for _, c := range id {
		if c == '*' || c == ':' || c == '/' || c == '\\' || c == '?' ||
			c == ' ' || c == '\t' || c == '\n' || c == '\r' ||
			c < 32 || c == 127 {
			return false
		}
	}
	return true
}
