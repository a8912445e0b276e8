// Package ledger is the relational store of users, orders and invitations.
// Every exported method runs in its own session or transaction, so no
// connection outlives the call that acquired it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rabbitluck-bot/internal/models"
	"rabbitluck-bot/internal/tonaddr"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrOrderNotPending = errors.New("order is not pending")
	ErrOrderNotFound   = errors.New("order not found")
	ErrUserNotFound    = errors.New("user not found")
)

// CreditFunc is invoked inside the confirmation transaction for the user
// owning the order's payer address. Returning an error rolls the
// confirmation back.
type CreditFunc func(ctx context.Context, user *models.User) error

type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Order{}, &models.Invitation{}); err != nil {
		return err
	}
	return normalizeAddresses(db)
}

// normalizeAddresses rewrites stored user and pending order addresses into
// the raw form used for payer matching.
func normalizeAddresses(db *gorm.DB) error {
	var users []models.User
	if err := db.Where("address <> ''").Find(&users).Error; err != nil {
		return fmt.Errorf("load user addresses: %w", err)
	}
	for _, u := range users {
		if n := tonaddr.Normalize(u.Address); n != u.Address {
			if err := db.Model(&models.User{}).Where("id = ?", u.ID).Update("address", n).Error; err != nil {
				return fmt.Errorf("normalize address of user %s: %w", u.UserID, err)
			}
		}
	}

	var orders []models.Order
	if err := db.Where("status = ? AND address <> ''", models.OrderStatusPending).Find(&orders).Error; err != nil {
		return fmt.Errorf("load order addresses: %w", err)
	}
	for _, o := range orders {
		if n := tonaddr.Normalize(o.Address); n != o.Address {
			if err := db.Model(&models.Order{}).Where("id = ?", o.ID).Update("address", n).Error; err != nil {
				return fmt.Errorf("normalize address of order %d: %w", o.ID, err)
			}
		}
	}
	return nil
}

func (l *Ledger) PendingOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := l.db.WithContext(ctx).
		Where("status = ?", models.OrderStatusPending).
		Order("id").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("select pending orders: %w", err)
	}
	return orders, nil
}

// CreateOrder stores a new pending order. The payer address is kept in its
// normalized raw form so it matches bound user addresses however either was
// spelled.
func (l *Ledger) CreateOrder(ctx context.Context, order *models.Order) error {
	order.Status = models.OrderStatusPending
	order.Address = tonaddr.Normalize(order.Address)
	if err := l.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (l *Ledger) GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	res := l.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&order)
	if res.Error != nil {
		return nil, fmt.Errorf("get order %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrOrderNotFound
	}
	return &order, nil
}

// RecordAttempt counts a failed reconciliation attempt on a still pending order.
func (l *Ledger) RecordAttempt(ctx context.Context, id uint, reason string) error {
	err := l.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, models.OrderStatusPending).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": truncate(reason, 512),
		}).Error
	if err != nil {
		return fmt.Errorf("record attempt on order %d: %w", id, err)
	}
	return nil
}

// AbandonOrder moves a pending order to the terminal abandoned state.
func (l *Ledger) AbandonOrder(ctx context.Context, id uint, reason string) error {
	res := l.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, models.OrderStatusPending).
		Updates(map[string]any{
			"status":     models.OrderStatusAbandoned,
			"last_error": truncate(reason, 512),
		})
	if res.Error != nil {
		return fmt.Errorf("abandon order %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrOrderNotPending
	}
	return nil
}

// ConfirmOrder locks the order row, verifies it is still pending, runs credit
// for the user bound to the payer address (if any) and marks the order
// confirmed. The returned user is nil when no user owns the address.
func (l *Ledger) ConfirmOrder(ctx context.Context, id uint, hash string, points float64, credit CreditFunc) (*models.User, error) {
	var owner *models.User
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		res := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND status = ?", id, models.OrderStatusPending).
			Limit(1).Find(&order)
		if res.Error != nil {
			return fmt.Errorf("lock order %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrOrderNotPending
		}

		user, err := findUserByAddress(tx, order.Address)
		switch {
		case err == nil:
			owner = user
			if credit != nil {
				if err := credit(ctx, owner); err != nil {
					return err
				}
			}
		case errors.Is(err, ErrUserNotFound):
		default:
			return err
		}

		now := l.now()
		res = tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", id, models.OrderStatusPending).
			Updates(map[string]any{
				"status":        models.OrderStatusConfirmed,
				"resolved_hash": hash,
				"points":        points,
				"confirmed_at":  &now,
				"last_error":    "",
			})
		if res.Error != nil {
			return fmt.Errorf("confirm order %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrOrderNotPending
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return owner, nil
}

func (l *Ledger) FindUser(ctx context.Context, userID string) (*models.User, error) {
	return findUser(l.db.WithContext(ctx), userID)
}

func findUser(tx *gorm.DB, userID string) (*models.User, error) {
	var user models.User
	res := tx.Where("user_id = ?", userID).Limit(1).Find(&user)
	if res.Error != nil {
		return nil, fmt.Errorf("find user %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func findUserByAddress(tx *gorm.DB, address string) (*models.User, error) {
	if strings.TrimSpace(address) == "" {
		return nil, ErrUserNotFound
	}
	var user models.User
	res := tx.Where("address = ?", tonaddr.Normalize(address)).Order("id").Limit(1).Find(&user)
	if res.Error != nil {
		return nil, fmt.Errorf("find user by address %s: %w", address, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

// CreateUserIfAbsent inserts a zero-balance user unless one already exists.
// created reports whether this call inserted the row.
func (l *Ledger) CreateUserIfAbsent(ctx context.Context, userID string) (*models.User, bool, error) {
	user := models.User{UserID: userID}
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&user)
	if res.Error != nil {
		return nil, false, fmt.Errorf("create user %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 1 {
		return &user, true, nil
	}

	existing, err := l.FindUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (l *Ledger) BindAddress(ctx context.Context, userID, address string) (*models.User, error) {
	var user *models.User
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := findUser(tx, userID)
		if err != nil {
			return err
		}
		found.Address = tonaddr.Normalize(address)
		if err := tx.Save(found).Error; err != nil {
			return fmt.Errorf("update address of %s: %w", userID, err)
		}
		user = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (l *Ledger) InvitationExists(ctx context.Context, inviterID, inviteeID string) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("inviter_id = ? AND invitee_user_id = ?", inviterID, inviteeID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check invitation %s->%s: %w", inviterID, inviteeID, err)
	}
	return count > 0, nil
}

// CreateInvitation records the referral edge once. created is false when the
// pair already existed.
func (l *Ledger) CreateInvitation(ctx context.Context, inv *models.Invitation) (bool, error) {
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "inviter_id"}, {Name: "invitee_user_id"}},
			DoNothing: true,
		}).
		Create(inv)
	if res.Error != nil {
		return false, fmt.Errorf("create invitation %s->%s: %w", inv.InviterID, inv.InviteeUserID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (l *Ledger) Users(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := l.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// SyncCounters copies the live counter values into the user's ledger row.
func (l *Ledger) SyncCounters(ctx context.Context, userID string, balance float64, cards int64) error {
	err := l.db.WithContext(ctx).Model(&models.User{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"balance": balance, "card_count": cards}).Error
	if err != nil {
		return fmt.Errorf("sync counters of %s: %w", userID, err)
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
