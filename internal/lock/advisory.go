// Package lock provides MySQL advisory locking so that only one housekeeper
// works on a proxy database at a time.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrLockTimeout is returned when lock acquisition times out because
// another instance is holding the lock.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// ErrLockLost is returned when the session holding the lock ended and the
// lock could not be taken back.
var ErrLockLost = errors.New("advisory lock lost")

// HousekeeperLockName is the advisory lock taken by a running worker.
const HousekeeperLockName = "proxyhk:housekeeper"

// TimeoutShort is the GET_LOCK wait, in seconds, used to detect a duplicate worker.
const TimeoutShort = 1

// Querier runs single row queries. GET_LOCK is bound to the MySQL session,
// so callers should pass a pinned *sql.Conn rather than a pool.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AdvisoryLock represents a MySQL advisory lock.
// It uses MySQL's GET_LOCK() function to acquire a named lock that is automatically
// released when the session ends or RELEASE_LOCK() is called.
type AdvisoryLock struct {
	q        Querier
	lockName string
	held     bool
}

// NewAdvisoryLock creates a new advisory lock with the given name.
// The lock is not acquired until AcquireLock is called.
func NewAdvisoryLock(q Querier, lockName string) *AdvisoryLock {
	return &AdvisoryLock{
		q:        q,
		lockName: lockName,
	}
}

// AcquireLock attempts to acquire the advisory lock with the specified timeout.
// Returns true if the lock was acquired, false if timeout was reached.
//
// MySQL GET_LOCK() return values:
//   - 1: Lock was obtained successfully
//   - 0: Timeout was reached without obtaining the lock
//   - NULL: An error occurred (e.g., out of memory, thread killed)
func (a *AdvisoryLock) AcquireLock(ctx context.Context, timeoutSeconds int) (bool, error) {
	if a.held {
		return true, nil
	}

	var result sql.NullInt64
	err := a.q.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", a.lockName, timeoutSeconds).Scan(&result)
	if err != nil {
		return false, fmt.Errorf("failed to execute GET_LOCK: %w", err)
	}

	if !result.Valid {
		return false, fmt.Errorf("GET_LOCK returned NULL for lock %q (possible database error)", a.lockName)
	}

	switch result.Int64 {
	case 1:
		a.held = true
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected GET_LOCK return value: %d", result.Int64)
	}
}

// ReleaseLock releases the advisory lock.
// Returns true if the lock was released, false if it was not held.
//
// MySQL RELEASE_LOCK() return values:
//   - 1: Lock was released successfully
//   - 0: Lock was not established by this session
//   - NULL: Named lock did not exist
func (a *AdvisoryLock) ReleaseLock(ctx context.Context) (bool, error) {
	if !a.held {
		return false, nil
	}

	var result sql.NullInt64
	err := a.q.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", a.lockName).Scan(&result)
	if err != nil {
		return false, fmt.Errorf("failed to execute RELEASE_LOCK: %w", err)
	}

	a.held = false
	if !result.Valid {
		return false, fmt.Errorf("RELEASE_LOCK returned NULL for lock %q (lock did not exist)", a.lockName)
	}

	switch result.Int64 {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected RELEASE_LOCK return value: %d", result.Int64)
	}
}

// Owned asks the server whether the current session still owns the lock.
// It returns false when the lock is free or held by another session, which
// happens silently when the server ends an idle session.
func (a *AdvisoryLock) Owned(ctx context.Context) (bool, error) {
	var result sql.NullInt64
	err := a.q.QueryRowContext(ctx, "SELECT IS_USED_LOCK(?) = CONNECTION_ID()", a.lockName).Scan(&result)
	if err != nil {
		return false, fmt.Errorf("failed to check lock %q: %w", a.lockName, err)
	}
	owned := result.Valid && result.Int64 == 1
	if !owned {
		a.held = false
	}
	return owned, nil
}

// LockName returns the name of the advisory lock.
func (a *AdvisoryLock) LockName() string {
	return a.lockName
}

// AcquireOrFail attempts to acquire the lock with a short timeout and returns
// ErrLockTimeout if another instance is holding it.
func (a *AdvisoryLock) AcquireOrFail(ctx context.Context) error {
	acquired, err := a.AcquireLock(ctx, TimeoutShort)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another instance", ErrLockTimeout, a.lockName)
	}
	return nil
}

// SessionLock is an advisory lock together with the connection that owns it.
type SessionLock struct {
	db   *sql.DB
	conn *sql.Conn
	lock *AdvisoryLock
}

// AcquireSession pins a connection from db and takes the named lock on it.
// The lock lives as long as the returned SessionLock is not released.
func AcquireSession(ctx context.Context, db *sql.DB, lockName string) (*SessionLock, error) {
	s := &SessionLock{db: db}
	if err := s.pin(ctx, lockName); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SessionLock) pin(ctx context.Context, lockName string) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to pin connection for lock %q: %w", lockName, err)
	}

	l := NewAdvisoryLock(conn, lockName)
	if err := l.AcquireOrFail(ctx); err != nil {
		conn.Close()
		return err
	}
	s.conn, s.lock = conn, l
	return nil
}

// Name returns the lock name.
func (s *SessionLock) Name() string {
	return s.lock.LockName()
}

// Verify confirms the pinned session still owns the lock, which also keeps
// the session from idling out. When the session was ended by the server the
// lock is taken again on a fresh connection and reacquired is true. If
// another instance got the lock in between, the error wraps ErrLockLost.
func (s *SessionLock) Verify(ctx context.Context) (reacquired bool, err error) {
	if s.conn == nil {
		return false, fmt.Errorf("%w: %q is no longer held", ErrLockLost, s.lock.LockName())
	}

	owned, err := s.lock.Owned(ctx)
	if err == nil && owned {
		return false, nil
	}

	s.conn.Close()
	s.conn = nil
	if err := s.pin(ctx, s.lock.LockName()); err != nil {
		return false, fmt.Errorf("%w: %v", ErrLockLost, err)
	}
	return true, nil
}

// Release drops the lock and returns the pinned connection to the pool.
// The lock also ends with the session, so a failed RELEASE_LOCK is not fatal.
func (s *SessionLock) Release() error {
	if s.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, relErr := s.lock.ReleaseLock(ctx)
	if err := s.conn.Close(); err != nil && relErr == nil {
		relErr = err
	}
	s.conn = nil
	return relErr
}
