package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"rabbitluck-bot/internal/toncenter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedChain struct {
	calls   int
	replies []func() ([]toncenter.TransactionRef, error)
}

func (s *scriptedChain) GetTransactions(ctx context.Context, address string, limit int) ([]toncenter.TransactionRef, error) {
	s.calls++
	if limit != DefaultLimit {
		return nil, errors.New("unexpected limit")
	}
	if s.calls <= len(s.replies) {
		return s.replies[s.calls-1]()
	}
	return nil, nil
}

func ref(hash string) toncenter.TransactionRef {
	return toncenter.TransactionRef{TransactionID: toncenter.TransactionID{Hash: hash}}
}

func empty() ([]toncenter.TransactionRef, error) { return nil, nil }

func TestResolveAfterRetries(t *testing.T) {
	chain := &scriptedChain{replies: []func() ([]toncenter.TransactionRef, error){
		empty,
		func() ([]toncenter.TransactionRef, error) { return nil, errors.New("timeout") },
		func() ([]toncenter.TransactionRef, error) {
			return []toncenter.TransactionRef{ref(""), ref("H")}, nil
		},
	}}
	r := New(chain, 60, time.Millisecond, nil)

	hash, err := r.Resolve(context.Background(), "A", "boc")
	require.NoError(t, err)
	assert.Equal(t, "H", hash)
	assert.Equal(t, 3, chain.calls)
}

func TestResolvePrefersReference(t *testing.T) {
	chain := &scriptedChain{replies: []func() ([]toncenter.TransactionRef, error){
		func() ([]toncenter.TransactionRef, error) {
			return []toncenter.TransactionRef{ref("newer"), ref("mine")}, nil
		},
	}}

	hash, err := New(chain, 5, 0, nil).Resolve(context.Background(), "A", "mine")
	require.NoError(t, err)
	assert.Equal(t, "mine", hash)
}

func TestResolveExhaustsBudget(t *testing.T) {
	chain := &scriptedChain{}
	r := New(chain, 60, 0, nil)

	_, err := r.Resolve(context.Background(), "A", "boc")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	assert.Equal(t, 60, chain.calls)
}

func TestResolveQueryErrorsDoNotAbort(t *testing.T) {
	fail := func() ([]toncenter.TransactionRef, error) { return nil, errors.New("502") }
	chain := &scriptedChain{replies: []func() ([]toncenter.TransactionRef, error){fail, fail, fail, fail}}

	_, err := New(chain, 4, 0, nil).Resolve(context.Background(), "A", "")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	assert.Equal(t, 4, chain.calls)
}

func TestResolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	chain := &scriptedChain{replies: []func() ([]toncenter.TransactionRef, error){
		func() ([]toncenter.TransactionRef, error) {
			cancel()
			return nil, nil
		},
	}}

	_, err := New(chain, 60, time.Hour, nil).Resolve(ctx, "A", "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, chain.calls)
}
