// Package referral credits referrers when a referred user is seen for the
// first time.
package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rabbitluck-bot/internal/ledger"
	"rabbitluck-bot/internal/logger"
	"rabbitluck-bot/internal/metrics"
	"rabbitluck-bot/internal/models"

	"github.com/sirupsen/logrus"
)

const (
	PremiumBonus  = 2500
	PremiumCards  = 15
	RegularBonus  = 500
	RegularCards  = 3
	InvitationLvl = 1
)

// ErrReferrerNotFound is returned when the referral code does not name an
// existing user other than the registrant.
var ErrReferrerNotFound = errors.New("referrer not found")

type UserLedger interface {
	CreateUserIfAbsent(ctx context.Context, userID string) (*models.User, bool, error)
	FindUser(ctx context.Context, userID string) (*models.User, error)
	InvitationExists(ctx context.Context, inviterID, inviteeID string) (bool, error)
	CreateInvitation(ctx context.Context, inv *models.Invitation) (bool, error)
}

type Counters interface {
	Seed(ctx context.Context, accountID string, balance float64, cards int64) error
	AddBalance(ctx context.Context, accountID string, amount float64) (float64, error)
	AddCards(ctx context.Context, accountID string, n int64) (int64, error)
}

// PremiumChecker reports whether an account holds premium status.
type PremiumChecker interface {
	IsPremium(ctx context.Context, accountID string) (bool, error)
}

// PremiumFunc adapts a plain function to PremiumChecker.
type PremiumFunc func(ctx context.Context, accountID string) (bool, error)

func (f PremiumFunc) IsPremium(ctx context.Context, accountID string) (bool, error) {
	return f(ctx, accountID)
}

type Registration struct {
	AccountID    string
	ReferralCode string
}

type Result struct {
	User       *models.User
	Created    bool
	Referred   bool
	Premium    bool
	Points     float64
	Cards      int64
	Invitation bool
}

type Engine struct {
	Ledger  UserLedger
	Store   Counters
	Premium PremiumChecker
	Metrics *metrics.Metrics
	Log     logrus.FieldLogger
}

func NewEngine(l UserLedger, store Counters, premium PremiumChecker, m *metrics.Metrics, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logger.Discard()
	}
	return &Engine{
		Ledger:  l,
		Store:   store,
		Premium: premium,
		Metrics: m,
		Log:     log.WithField("component", "referral"),
	}
}

// Bonus returns the referrer reward for a registrant of the given tier.
func Bonus(premium bool) (points float64, cards int64) {
	if premium {
		return PremiumBonus, PremiumCards
	}
	return RegularBonus, RegularCards
}

// Register records a user on first contact and, when a referral code came
// with that first contact, rewards the referrer. Later registrations of the
// same account never pay out again. Steps are not rolled back across stores:
// a failure after the user row was written leaves the row in place.
func (e *Engine) Register(ctx context.Context, reg Registration) (Result, error) {
	accountID := strings.TrimSpace(reg.AccountID)
	if accountID == "" {
		return Result{}, errors.New("account id is required")
	}
	code := strings.TrimSpace(reg.ReferralCode)
	log := e.log().WithField("user_id", accountID)

	user, created, err := e.Ledger.CreateUserIfAbsent(ctx, accountID)
	if err != nil {
		return Result{}, err
	}
	res := Result{User: user, Created: created}
	if !created {
		log.Debug("returning user, no referral processing")
		return res, nil
	}
	log.Info("new user registered")
	if code == "" {
		return res, nil
	}

	log = log.WithField("referrer_id", code)
	if code == accountID {
		log.Warn("self referral ignored")
		return res, ErrReferrerNotFound
	}
	referrer, err := e.Ledger.FindUser(ctx, code)
	if errors.Is(err, ledger.ErrUserNotFound) {
		log.Warn("referrer does not exist")
		return res, ErrReferrerNotFound
	}
	if err != nil {
		return res, err
	}

	res.Referred = true
	res.Premium = e.isPremium(ctx, log, accountID)
	res.Points, res.Cards = Bonus(res.Premium)

	// Counters missing from the store start from the ledger row.
	if err := e.Store.Seed(ctx, referrer.UserID, referrer.Balance, referrer.CardCount); err != nil {
		log.WithError(err).Error("failed to seed referrer counters")
		return res, fmt.Errorf("seed referrer %s: %w", referrer.UserID, err)
	}
	balance, err := e.Store.AddBalance(ctx, referrer.UserID, res.Points)
	if err != nil {
		log.WithError(err).Error("failed to credit referrer balance")
		return res, fmt.Errorf("credit referrer %s: %w", referrer.UserID, err)
	}
	cards, err := e.Store.AddCards(ctx, referrer.UserID, res.Cards)
	if err != nil {
		log.WithError(err).Error("failed to credit referrer cards")
		return res, fmt.Errorf("credit cards to referrer %s: %w", referrer.UserID, err)
	}
	e.Metrics.ObserveReferralBonus(res.Premium)
	log.WithFields(logrus.Fields{
		"premium":    res.Premium,
		"balance":    balance,
		"card_count": cards,
	}).Info("referrer credited")

	exists, err := e.Ledger.InvitationExists(ctx, referrer.UserID, accountID)
	if err != nil {
		log.WithError(err).Error("failed to check invitation")
		return res, err
	}
	if exists {
		log.Warn("invitation already recorded")
		return res, nil
	}

	inviteeAddress := ""
	if res.Premium {
		inviteeAddress = "true"
	}
	res.Invitation, err = e.Ledger.CreateInvitation(ctx, &models.Invitation{
		InviterID:      referrer.UserID,
		InviterAddress: referrer.Address,
		InviteeUserID:  accountID,
		InviteeAddress: inviteeAddress,
		Level:          InvitationLvl,
	})
	if err != nil {
		log.WithError(err).Error("failed to record invitation")
		return res, err
	}
	if res.Invitation {
		log.Info("invitation recorded")
	}
	return res, nil
}

func (e *Engine) isPremium(ctx context.Context, log logrus.FieldLogger, accountID string) bool {
	if e.Premium == nil {
		return false
	}
	premium, err := e.Premium.IsPremium(ctx, accountID)
	if err != nil {
		log.WithError(err).Warn("premium check failed, treating as regular")
		return false
	}
	return premium
}

func (e *Engine) log() logrus.FieldLogger {
	if e.Log == nil {
		return logger.Discard()
	}
	return e.Log
}
