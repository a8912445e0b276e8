package worker

import (
	"context"
	"testing"

	"rabbitluck-bot/internal/models"
	"rabbitluck-bot/internal/toncenter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceSyncSeedsMissingCounters(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	require.NoError(t, env.db.Create(&models.User{UserID: "U", Balance: 12.5, CardCount: 4}).Error)

	require.NoError(t, NewBalanceSync(env.ledger, env.store, nil).SyncOnce(ctx))

	bal, ok, err := env.store.Balance(ctx, "U")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12.5, bal)
	cards, ok, err := env.store.CardCount(ctx, "U")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(4), cards)
}

func TestBalanceSyncCopiesCountersToLedger(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	require.NoError(t, env.db.Create(&models.User{UserID: "U", Balance: 1, CardCount: 1}).Error)
	require.NoError(t, env.store.Seed(ctx, "U", 1, 1))
	_, err := env.store.AddBalance(ctx, "U", 2500)
	require.NoError(t, err)
	_, err = env.store.AddCards(ctx, "U", 15)
	require.NoError(t, err)

	require.NoError(t, NewBalanceSync(env.ledger, env.store, nil).SyncOnce(ctx))

	user, err := env.ledger.FindUser(ctx, "U")
	require.NoError(t, err)
	assert.Equal(t, 2501.0, user.Balance)
	assert.Equal(t, int64(16), user.CardCount)
}

func TestBalanceSyncReportsCounterFailures(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	require.NoError(t, env.db.Create(&models.User{UserID: "U"}).Error)
	env.mr.SetError("LOADING redis is loading")
	defer env.mr.SetError("")

	err := NewBalanceSync(env.ledger, env.store, nil).SyncOnce(ctx)
	assert.Error(t, err)
}

func TestBalanceSyncKeepsLedgerBalanceAfterFirstCredit(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	require.NoError(t, env.db.Create(&models.User{UserID: "U", Address: "A", Balance: 100}).Error)
	o := env.order(t, "A")
	env.resolver.hashes["A"] = "H"
	env.chain.records["H"] = []toncenter.Transaction{payTx("10000", msg(false, testToken))}

	require.NoError(t, env.reconciler(t, nil).ReconcileOnce(ctx))
	require.Equal(t, models.OrderStatusConfirmed, env.reload(t, o.ID).Status)

	sync := NewBalanceSync(env.ledger, env.store, nil)
	require.NoError(t, sync.SyncOnce(ctx))
	require.NoError(t, sync.SyncOnce(ctx))

	bal, ok, err := env.store.Balance(ctx, "U")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 102.0, bal)

	user, err := env.ledger.FindUser(ctx, "U")
	require.NoError(t, err)
	assert.Equal(t, 102.0, user.Balance)
}
