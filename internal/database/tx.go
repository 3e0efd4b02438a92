package database

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"gorm.io/gorm"

	"github.com/cruisemall/affiliate/internal/apperrors"
	"github.com/cruisemall/affiliate/internal/models"
)

// TxRunner runs ledger operations as single transactions. A transaction that
// fails with a storage error is rolled back and the whole operation is run
// again; domain errors end the operation immediately.
type TxRunner struct {
	db       *gorm.DB
	executor failsafe.Executor[any]
}

// RetryConfig bounds the retries of a failed transaction
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// NewTxRunner creates a runner on db
func NewTxRunner(db *gorm.DB, cfg RetryConfig) *TxRunner {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 50 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	policy := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return Transient(err)
		}).
		WithMaxRetries(cfg.MaxRetries).
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		Build()

	return &TxRunner{
		db:       db,
		executor: failsafe.With[any](policy),
	}
}

// DB returns the underlying handle for reads outside a transaction
func (r *TxRunner) DB() *gorm.DB {
	return r.db
}

// Transact runs fn inside one transaction. fn must use only the tx it is
// given; touching the outer handle inside fn can deadlock a small pool.
func (r *TxRunner) Transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	_, err := r.executor.WithContext(ctx).Get(func() (any, error) {
		return nil, r.db.WithContext(ctx).Transaction(fn)
	})
	return err
}

// Transient reports whether err is worth retrying
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if apperrors.IsDomain(err) {
		return false
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, models.ErrDurableEntry),
		errors.Is(err, models.ErrImmutableEntry),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
