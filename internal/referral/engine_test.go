package referral

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"rabbitluck-bot/internal/balance"
	"rabbitluck-bot/internal/ledger"
	"rabbitluck-bot/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type env struct {
	db    *gorm.DB
	store *balance.Store
	mr    *miniredis.Miniredis
}

func setup(t *testing.T) *env {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, ledger.AutoMigrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &env{db: db, store: balance.NewStore(rdb), mr: mr}
}

func (e *env) engine(premium PremiumChecker) *Engine {
	return NewEngine(ledger.New(e.db), e.store, premium, nil, nil)
}

func premiumIs(v bool) PremiumChecker {
	return PremiumFunc(func(ctx context.Context, accountID string) (bool, error) { return v, nil })
}

func (e *env) invitations(t *testing.T) []models.Invitation {
	t.Helper()
	var invs []models.Invitation
	require.NoError(t, e.db.Find(&invs).Error)
	return invs
}

func (e *env) counters(t *testing.T, id string) (float64, int64) {
	t.Helper()
	bal, _, err := e.store.Balance(context.Background(), id)
	require.NoError(t, err)
	cards, _, err := e.store.CardCount(context.Background(), id)
	require.NoError(t, err)
	return bal, cards
}

func TestBonus(t *testing.T) {
	points, cards := Bonus(true)
	assert.Equal(t, 2500.0, points)
	assert.Equal(t, int64(15), cards)

	points, cards = Bonus(false)
	assert.Equal(t, 500.0, points)
	assert.Equal(t, int64(3), cards)
}

func TestRegisterPremiumReferral(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	require.NoError(t, e.db.Create(&models.User{UserID: "R", Address: "RA"}).Error)

	res, err := e.engine(premiumIs(true)).Register(ctx, Registration{AccountID: "N", ReferralCode: "R"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, res.Referred)
	assert.True(t, res.Premium)
	assert.True(t, res.Invitation)

	bal, cards := e.counters(t, "R")
	assert.Equal(t, 2500.0, bal)
	assert.Equal(t, int64(15), cards)

	invs := e.invitations(t)
	require.Len(t, invs, 1)
	assert.Equal(t, "R", invs[0].InviterID)
	assert.Equal(t, "RA", invs[0].InviterAddress)
	assert.Equal(t, "N", invs[0].InviteeUserID)
	assert.Equal(t, "true", invs[0].InviteeAddress)
	assert.Equal(t, 1, invs[0].Level)
}

func TestRegisterRegularReferral(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.db.Create(&models.User{UserID: "R"}).Error)

	res, err := e.engine(premiumIs(false)).Register(context.Background(), Registration{AccountID: "N", ReferralCode: "R"})
	require.NoError(t, err)
	assert.False(t, res.Premium)

	bal, cards := e.counters(t, "R")
	assert.Equal(t, 500.0, bal)
	assert.Equal(t, int64(3), cards)
	require.Len(t, e.invitations(t), 1)
	assert.Empty(t, e.invitations(t)[0].InviteeAddress)
}

func TestRegisterPremiumCheckFailureIsRegular(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.db.Create(&models.User{UserID: "R"}).Error)
	failing := PremiumFunc(func(ctx context.Context, accountID string) (bool, error) {
		return false, errors.New("chat not found")
	})

	res, err := e.engine(failing).Register(context.Background(), Registration{AccountID: "N", ReferralCode: "R"})
	require.NoError(t, err)
	assert.False(t, res.Premium)
	bal, _ := e.counters(t, "R")
	assert.Equal(t, 500.0, bal)
}

func TestRegisterIsIdempotent(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	require.NoError(t, e.db.Create(&models.User{UserID: "R"}).Error)
	eng := e.engine(premiumIs(true))

	_, err := eng.Register(ctx, Registration{AccountID: "N", ReferralCode: "R"})
	require.NoError(t, err)
	res, err := eng.Register(ctx, Registration{AccountID: "N", ReferralCode: "R"})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.False(t, res.Referred)

	bal, cards := e.counters(t, "R")
	assert.Equal(t, 2500.0, bal)
	assert.Equal(t, int64(15), cards)
	assert.Len(t, e.invitations(t), 1)
}

func TestRegisterExistingUserIgnoresCode(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.db.Create(&models.User{UserID: "R"}).Error)
	require.NoError(t, e.db.Create(&models.User{UserID: "N"}).Error)

	res, err := e.engine(premiumIs(true)).Register(context.Background(), Registration{AccountID: "N", ReferralCode: "R"})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Empty(t, e.mr.Keys())
	assert.Empty(t, e.invitations(t))
}

func TestRegisterUnknownReferrer(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	res, err := e.engine(premiumIs(true)).Register(ctx, Registration{AccountID: "N", ReferralCode: "ghost"})
	assert.ErrorIs(t, err, ErrReferrerNotFound)
	assert.True(t, res.Created)
	assert.Empty(t, e.invitations(t))
	assert.Empty(t, e.mr.Keys())

	user, err := ledger.New(e.db).FindUser(ctx, "N")
	require.NoError(t, err)
	assert.Equal(t, "N", user.UserID)
}

func TestRegisterSelfReferral(t *testing.T) {
	e := setup(t)

	_, err := e.engine(premiumIs(true)).Register(context.Background(), Registration{AccountID: "N", ReferralCode: "N"})
	assert.ErrorIs(t, err, ErrReferrerNotFound)
	assert.Empty(t, e.mr.Keys())
}

func TestRegisterWithoutCode(t *testing.T) {
	e := setup(t)

	res, err := e.engine(nil).Register(context.Background(), Registration{AccountID: "N"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.Referred)
}

func TestRegisterStoreFailureKeepsUser(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	require.NoError(t, e.db.Create(&models.User{UserID: "R"}).Error)
	e.mr.SetError("LOADING redis is loading")
	defer e.mr.SetError("")

	_, err := e.engine(premiumIs(false)).Register(ctx, Registration{AccountID: "N", ReferralCode: "R"})
	require.Error(t, err)

	_, err = ledger.New(e.db).FindUser(ctx, "N")
	require.NoError(t, err)
	assert.Empty(t, e.invitations(t))
}

func TestRegisterRequiresAccount(t *testing.T) {
	_, err := setup(t).engine(nil).Register(context.Background(), Registration{AccountID: " "})
	assert.Error(t, err)
}

func TestRegisterSeedsReferrerFromLedger(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	require.NoError(t, e.db.Create(&models.User{UserID: "R", Balance: 100, CardCount: 4}).Error)

	_, err := e.engine(premiumIs(false)).Register(ctx, Registration{AccountID: "N", ReferralCode: "R"})
	require.NoError(t, err)

	bal, cards := e.counters(t, "R")
	assert.Equal(t, 600.0, bal)
	assert.Equal(t, int64(7), cards)
}

func TestRegisterKeepsExistingInvitation(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	require.NoError(t, e.db.Create(&models.User{UserID: "R"}).Error)
	require.NoError(t, e.db.Create(&models.Invitation{InviterID: "R", InviteeUserID: "N", InviteeAddress: "true", Level: InvitationLvl}).Error)

	res, err := e.engine(premiumIs(false)).Register(ctx, Registration{AccountID: "N", ReferralCode: "R"})
	require.NoError(t, err)
	assert.True(t, res.Referred)
	assert.False(t, res.Invitation)

	invs := e.invitations(t)
	require.Len(t, invs, 1)
	assert.Equal(t, "true", invs[0].InviteeAddress)
}
