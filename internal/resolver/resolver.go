package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rabbitluck-bot/internal/logger"
	"rabbitluck-bot/internal/toncenter"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts = 60
	DefaultDelay       = time.Second
	DefaultLimit       = 10
)

// ErrTransactionNotFound means no hash was observed within the attempt
// budget. It does not prove that the transaction does not exist.
var ErrTransactionNotFound = errors.New("transaction not found within the attempt budget")

var errNotObserved = errors.New("no transaction hash observed yet")

type TransactionLister interface {
	GetTransactions(ctx context.Context, address string, limit int) ([]toncenter.TransactionRef, error)
}

type Resolver struct {
	Chain       TransactionLister
	MaxAttempts int
	Delay       time.Duration
	Limit       int
	Log         logrus.FieldLogger
}

func New(chain TransactionLister, maxAttempts int, delay time.Duration, log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logger.Discard()
	}
	return &Resolver{
		Chain:       chain,
		MaxAttempts: maxAttempts,
		Delay:       delay,
		Limit:       DefaultLimit,
		Log:         log,
	}
}

// Resolve polls the recent transactions of address until one carries a hash.
// A hash equal to reference is preferred when the node reports it. Query
// errors count as an ordinary failed attempt.
func (r *Resolver) Resolve(ctx context.Context, address, reference string) (string, error) {
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	limit := r.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	log := r.Log
	if log == nil {
		log = logger.Discard()
	}
	log = log.WithField("address", address)

	var (
		hash    string
		attempt int
	)
	op := func() error {
		attempt++
		refs, err := r.Chain.GetTransactions(ctx, address, limit)
		if err != nil {
			return fmt.Errorf("fetch transactions: %w", err)
		}
		if h := pickHash(refs, reference); h != "" {
			hash = h
			return nil
		}
		return errNotObserved
	}
	notify := func(err error, wait time.Duration) {
		entry := log.WithField("attempt", attempt).WithField("retry_in", wait.String())
		if errors.Is(err, errNotObserved) {
			entry.Debug("transaction not observed yet")
			return
		}
		entry.WithError(err).Warn("error fetching transactions")
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.Delay), uint64(maxAttempts-1)),
		ctx,
	)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w (%d attempts, last: %v)", ErrTransactionNotFound, attempt, err)
	}

	log.WithField("attempt", attempt).WithField("hash", hash).Debug("transaction resolved")
	return hash, nil
}

func pickHash(refs []toncenter.TransactionRef, reference string) string {
	first := ""
	for _, ref := range refs {
		h := ref.Hash()
		if h == "" {
			continue
		}
		if reference != "" && h == reference {
			return h
		}
		if first == "" {
			first = h
		}
	}
	return first
}
