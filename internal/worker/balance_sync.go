package worker

import (
	"context"
	"errors"
	"fmt"

	"rabbitluck-bot/internal/logger"
	"rabbitluck-bot/internal/models"

	"github.com/sirupsen/logrus"
)

type CounterStore interface {
	Balance(ctx context.Context, accountID string) (float64, bool, error)
	CardCount(ctx context.Context, accountID string) (int64, bool, error)
	Seed(ctx context.Context, accountID string, balance float64, cards int64) error
}

type UserLedger interface {
	Users(ctx context.Context) ([]models.User, error)
	SyncCounters(ctx context.Context, userID string, balance float64, cards int64) error
}

// BalanceSync mirrors the live counters into the ledger. Users without
// counters get them seeded from their ledger row; otherwise the counter wins.
type BalanceSync struct {
	Ledger   UserLedger
	Counters CounterStore
	Log      logrus.FieldLogger
}

func NewBalanceSync(l UserLedger, counters CounterStore, log logrus.FieldLogger) *BalanceSync {
	if log == nil {
		log = logger.Discard()
	}
	return &BalanceSync{Ledger: l, Counters: counters, Log: log.WithField("component", "balance_sync")}
}

// SyncOnce walks every user. Failures on a single user are collected and
// do not stop the walk.
func (s *BalanceSync) SyncOnce(ctx context.Context) error {
	users, err := s.Ledger.Users(ctx)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}

	var (
		errs           []error
		seeded, synced int
	)
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		changed, seed, err := s.syncUser(ctx, user)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if seed {
			seeded++
		}
		if changed {
			synced++
		}
	}

	s.Log.WithFields(logrus.Fields{
		"users":  len(users),
		"seeded": seeded,
		"synced": synced,
		"failed": len(errs),
	}).Debug("balance sync pass finished")
	return errors.Join(errs...)
}

func (s *BalanceSync) syncUser(ctx context.Context, user models.User) (changed, seeded bool, err error) {
	balance, hasBalance, err := s.Counters.Balance(ctx, user.UserID)
	if err != nil {
		return false, false, err
	}
	cards, hasCards, err := s.Counters.CardCount(ctx, user.UserID)
	if err != nil {
		return false, false, err
	}

	if !hasBalance || !hasCards {
		if err := s.Counters.Seed(ctx, user.UserID, user.Balance, user.CardCount); err != nil {
			return false, false, err
		}
		return false, true, nil
	}

	if balance == user.Balance && cards == user.CardCount {
		return false, false, nil
	}
	if err := s.Ledger.SyncCounters(ctx, user.UserID, balance, cards); err != nil {
		return false, false, err
	}
	return true, false, nil
}
