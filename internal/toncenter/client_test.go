package toncenter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/getTransactions", r.URL.Path)
		assert.Equal(t, "EQpayer", r.URL.Query().Get("address"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		_, _ = w.Write([]byte(`{"ok":true,"result":[{"utime":1,"transaction_id":{"lt":"5","hash":"abc="}},{"transaction_id":{"lt":"4"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", 100)
	refs, err := c.GetTransactions(context.Background(), "EQpayer", 10)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "abc=", refs[0].Hash())
	assert.Empty(t, refs[1].Hash())
}

func TestGetTransactionsNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"invalid address"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", 100).GetTransactions(context.Background(), "bad", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid address")
}

func TestTransactionDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/api/v3/transactions", r.URL.Path)
		assert.Equal(t, "EQpayer", q.Get("account"))
		assert.Equal(t, "H", q.Get("hash"))
		assert.Equal(t, "128", q.Get("limit"))
		assert.Equal(t, "0", q.Get("offset"))
		assert.Equal(t, "desc", q.Get("sort"))
		assert.Empty(t, r.Header.Get("X-API-Key"))
		_, _ = w.Write([]byte(`{"transactions":[
			{"account":"0:AA","hash":"H","total_fees":"15000","out_msgs":[{"bounce":false,"destination":"0:BB"},{"destination":null}]},
			{"account":"0:AA","total_fees":42,"out_msgs":[]},
			{"hash":"X"}
		]}`))
	}))
	defer srv.Close()

	txs, err := NewClient(srv.URL, "", 100).TransactionDetails(context.Background(), TransactionQuery{
		Account: "EQpayer", Hash: "H", Limit: 128, Offset: 0, Sort: "desc",
	})
	require.NoError(t, err)
	require.Len(t, txs, 3)

	first := txs[0]
	require.NotNil(t, first.TotalFees)
	assert.Equal(t, "15000", first.TotalFees.String())
	require.Len(t, first.OutMsgs, 2)
	require.NotNil(t, first.OutMsgs[0].Bounce)
	assert.False(t, *first.OutMsgs[0].Bounce)
	assert.Equal(t, "0:BB", *first.OutMsgs[0].Destination)
	assert.Nil(t, first.OutMsgs[1].Bounce)
	assert.Nil(t, first.OutMsgs[1].Destination)

	require.NotNil(t, txs[1].TotalFees)
	assert.Equal(t, "42", txs[1].TotalFees.String())

	assert.Nil(t, txs[2].TotalFees)
	assert.Nil(t, txs[2].Account)
}

func TestTransactionDetailsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", 100).TransactionDetails(context.Background(), TransactionQuery{Account: "A", Hash: "H", Limit: 128})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
	assert.Equal(t, endpointTransactions, statusErr.Endpoint)
	assert.Contains(t, statusErr.Body, "rate limit exceeded")
}

func TestTransactionDetailsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"transactions":[{"total_fees":{"nanotons":1}}]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", 100).TransactionDetails(context.Background(), TransactionQuery{Account: "A", Hash: "H", Limit: 128})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestRequestHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not be sent with a cancelled context")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(srv.URL, "", 100).GetTransactions(ctx, "A", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
