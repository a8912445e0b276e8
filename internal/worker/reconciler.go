package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rabbitluck-bot/internal/config"
	"rabbitluck-bot/internal/ledger"
	"rabbitluck-bot/internal/logger"
	"rabbitluck-bot/internal/metrics"
	"rabbitluck-bot/internal/models"
	"rabbitluck-bot/internal/toncenter"
	"rabbitluck-bot/internal/tonaddr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	DefaultConversionRate = 5000
	DefaultDetailLimit    = 128
)

type OrderLedger interface {
	PendingOrders(ctx context.Context) ([]models.Order, error)
	RecordAttempt(ctx context.Context, id uint, reason string) error
	AbandonOrder(ctx context.Context, id uint, reason string) error
	ConfirmOrder(ctx context.Context, id uint, hash string, points float64, credit ledger.CreditFunc) (*models.User, error)
}

type TransactionResolver interface {
	Resolve(ctx context.Context, address, reference string) (string, error)
}

type TransactionFetcher interface {
	TransactionDetails(ctx context.Context, q toncenter.TransactionQuery) ([]toncenter.Transaction, error)
}

type Crediter interface {
	CreditOnce(ctx context.Context, creditID, accountID string, amount, seed float64) (applied bool, value float64, err error)
}

// ReconcilerConfig wires the reconciler. Ledger, Resolver, Chain, Balances
// and TokenAddress are required.
type ReconcilerConfig struct {
	Ledger       OrderLedger
	Resolver     TransactionResolver
	Chain        TransactionFetcher
	Balances     Crediter
	TokenAddress string

	ConversionRate int64
	DetailLimit    int
	MatchMode      string

	// Zero disables the cutoff; pending orders are then retried forever.
	MaxAttempts int
	MaxAge      time.Duration

	Metrics *metrics.Metrics
	Log     logrus.FieldLogger
	Now     func() time.Time
}

// Reconciler confirms pending orders against the chain and credits points.
type Reconciler struct {
	ledger   OrderLedger
	resolver TransactionResolver
	chain    TransactionFetcher
	balances Crediter
	token    string

	rate        decimal.Decimal
	detailLimit int
	matchMode   string
	maxAttempts int
	maxAge      time.Duration

	metrics *metrics.Metrics
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	switch {
	case cfg.Ledger == nil:
		return nil, errors.New("reconciler: ledger is required")
	case cfg.Resolver == nil:
		return nil, errors.New("reconciler: resolver is required")
	case cfg.Chain == nil:
		return nil, errors.New("reconciler: chain client is required")
	case cfg.Balances == nil:
		return nil, errors.New("reconciler: balance store is required")
	case strings.TrimSpace(cfg.TokenAddress) == "":
		return nil, errors.New("reconciler: token address is required")
	}

	rate := cfg.ConversionRate
	if rate <= 0 {
		rate = DefaultConversionRate
	}
	limit := cfg.DetailLimit
	if limit <= 0 {
		limit = DefaultDetailLimit
	}
	mode := cfg.MatchMode
	if mode == "" {
		mode = config.MatchAccepted
	}
	if mode != config.MatchAccepted && mode != config.MatchLast {
		return nil, fmt.Errorf("reconciler: unknown match mode %q", mode)
	}
	log := cfg.Log
	if log == nil {
		log = logger.Discard()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Reconciler{
		ledger:      cfg.Ledger,
		resolver:    cfg.Resolver,
		chain:       cfg.Chain,
		balances:    cfg.Balances,
		token:       cfg.TokenAddress,
		rate:        decimal.NewFromInt(rate),
		detailLimit: limit,
		matchMode:   mode,
		maxAttempts: cfg.MaxAttempts,
		maxAge:      cfg.MaxAge,
		metrics:     cfg.Metrics,
		log:         log.WithField("component", "reconciler"),
		now:         now,
	}, nil
}

// ReconcileOnce runs one pass over every pending order. Per-order failures
// are logged and leave the order pending; only a ledger read failure or
// cancellation ends the pass early.
func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	started := r.now()
	log := r.log.WithField("pass_id", uuid.NewString())

	orders, err := r.ledger.PendingOrders(ctx)
	if err != nil {
		r.metrics.ObservePass("ledger_error", r.now().Sub(started))
		return fmt.Errorf("load pending orders: %w", err)
	}
	log.WithField("pending", len(orders)).Debug("reconciliation pass started")

	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			r.metrics.ObservePass("cancelled", r.now().Sub(started))
			return err
		}
		if err := r.processOrder(ctx, log, order); err != nil {
			r.metrics.ObservePass("cancelled", r.now().Sub(started))
			return err
		}
	}

	r.metrics.ObservePass("ok", r.now().Sub(started))
	log.WithField("pending", len(orders)).Info("reconciliation pass finished")
	return nil
}

// processOrder only returns an error when ctx was cancelled.
func (r *Reconciler) processOrder(ctx context.Context, passLog logrus.FieldLogger, order models.Order) error {
	log := passLog.WithFields(logrus.Fields{
		"order_id": order.ID,
		"address":  order.Address,
	})

	if reason := r.cutoffReason(order); reason != "" {
		if err := r.ledger.AbandonOrder(ctx, order.ID, reason); err != nil {
			log.WithError(err).Error("failed to abandon order")
			return nil
		}
		r.metrics.ObserveAbandoned()
		log.WithField("reason", reason).Warn("order abandoned")
		return nil
	}

	hash, err := r.resolver.Resolve(ctx, order.Address, order.TransactionHash)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.skip(ctx, log, order, "not_found", err)
		return nil
	}
	log = log.WithField("hash", hash)

	txs, err := r.chain.TransactionDetails(ctx, toncenter.TransactionQuery{
		Account: order.Address,
		Hash:    hash,
		Limit:   r.detailLimit,
		Offset:  0,
		Sort:    "desc",
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reason := "chain_error"
		var statusErr *toncenter.StatusError
		if errors.As(err, &statusErr) {
			reason = "chain_status"
		}
		r.skip(ctx, log, order, reason, err)
		return nil
	}

	for i, tx := range txs {
		p, err := r.evaluate(tx)
		if err != nil {
			log.WithError(err).WithField("record", i).Warn("skipping transaction record")
			continue
		}
		if !p.qualifies {
			continue
		}
		return r.confirm(ctx, log, order, hash, p)
	}

	r.skip(ctx, log, order, "no_payment", errors.New("no non-bounced transfer to the token address"))
	return nil
}

type payment struct {
	account   string
	hash      string
	fees      decimal.Decimal
	points    float64
	qualifies bool
}

// evaluate validates one transaction record. An error means the record is
// unusable; a usable record that is not a payment has qualifies=false.
func (r *Reconciler) evaluate(tx toncenter.Transaction) (payment, error) {
	var p payment
	if tx.Account != nil {
		p.account = *tx.Account
	}
	if tx.Hash != nil {
		p.hash = *tx.Hash
	}
	if tx.TotalFees == nil {
		return p, errors.New("total_fees is missing")
	}
	fees, err := decimal.NewFromString(strings.TrimSpace(tx.TotalFees.String()))
	if err != nil {
		return p, fmt.Errorf("total_fees %q is not a valid number: %w", tx.TotalFees.String(), err)
	}
	p.fees = fees

	var (
		nonBounced bool
		accepted   bool
		last       *string
	)
	for _, msg := range tx.OutMsgs {
		last = msg.Destination
		if msg.Bounce == nil || *msg.Bounce {
			continue
		}
		nonBounced = true
		if msg.Destination != nil && tonaddr.Equal(*msg.Destination, r.token) {
			accepted = true
		}
	}

	switch r.matchMode {
	case config.MatchLast:
		p.qualifies = nonBounced && last != nil && tonaddr.Equal(*last, r.token)
	default:
		p.qualifies = accepted
	}

	p.points, _ = fees.Div(r.rate).Float64()
	return p, nil
}

func (r *Reconciler) confirm(ctx context.Context, log logrus.FieldLogger, order models.Order, hash string, p payment) error {
	creditID := fmt.Sprintf("order:%d", order.ID)
	log = log.WithFields(logrus.Fields{
		"total_fees": p.fees.String(),
		"points":     p.points,
	})

	owner, err := r.ledger.ConfirmOrder(ctx, order.ID, hash, p.points, func(ctx context.Context, user *models.User) error {
		applied, balance, err := r.balances.CreditOnce(ctx, creditID, user.UserID, p.points, user.Balance)
		if err != nil {
			return fmt.Errorf("credit user %s: %w", user.UserID, err)
		}
		entry := log.WithFields(logrus.Fields{"user_id": user.UserID, "balance": balance})
		if applied {
			entry.Info("balance credited")
		} else {
			entry.Warn("credit already applied earlier, finishing confirmation")
		}
		return nil
	})
	switch {
	case errors.Is(err, ledger.ErrOrderNotPending):
		log.Info("order already settled elsewhere")
		return nil
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.skip(ctx, log, order, "confirm_failed", err)
		return nil
	}

	if owner == nil {
		log.Warn("no user bound to payer address, order confirmed without credit")
		r.metrics.ObserveConfirmed(0)
		return nil
	}
	r.metrics.ObserveConfirmed(p.points)
	log.WithField("user_id", owner.UserID).Info("order confirmed")
	return nil
}

func (r *Reconciler) skip(ctx context.Context, log logrus.FieldLogger, order models.Order, reason string, cause error) {
	r.metrics.ObserveSkipped(reason)
	log.WithError(cause).WithField("reason", reason).Warn("order left pending")
	if err := r.ledger.RecordAttempt(ctx, order.ID, cause.Error()); err != nil {
		log.WithError(err).Error("failed to record attempt")
	}
}

func (r *Reconciler) cutoffReason(order models.Order) string {
	if r.maxAttempts > 0 && order.Attempts >= r.maxAttempts {
		return fmt.Sprintf("gave up after %d attempts", order.Attempts)
	}
	if r.maxAge > 0 && !order.CreatedAt.IsZero() && r.now().Sub(order.CreatedAt) > r.maxAge {
		return fmt.Sprintf("pending for longer than %s", r.maxAge)
	}
	return ""
}
