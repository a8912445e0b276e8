package toncenter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// TransactionRef is the minimal shape returned by the v2 getTransactions call.
type TransactionRef struct {
	Utime         int64         `json:"utime"`
	TransactionID TransactionID `json:"transaction_id"`
}

type TransactionID struct {
	LT   string `json:"lt"`
	Hash string `json:"hash"`
}

// Hash returns the transaction hash, empty if the node did not report one.
func (r TransactionRef) Hash() string {
	return strings.TrimSpace(r.TransactionID.Hash)
}

type getTransactionsResponse struct {
	OK     bool             `json:"ok"`
	Result []TransactionRef `json:"result"`
	Error  string           `json:"error,omitempty"`
}

// TransactionQuery parameters of the v3 transactions endpoint.
type TransactionQuery struct {
	Account string
	Hash    string
	Limit   int
	Offset  int
	Sort    string
}

// Transaction is a v3 transaction record. Every field the reconciler relies
// on is optional so that missing data is an explicit branch for callers.
type Transaction struct {
	Account   *string    `json:"account,omitempty"`
	Hash      *string    `json:"hash,omitempty"`
	TotalFees *FeeAmount `json:"total_fees,omitempty"`
	OutMsgs   []Message  `json:"out_msgs"`
}

type Message struct {
	Bounce      *bool   `json:"bounce,omitempty"`
	Destination *string `json:"destination,omitempty"`
}

type transactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
}

// FeeAmount keeps the raw fee value. TonCenter serialises big integers as
// strings, but plain numbers are accepted too.
type FeeAmount string

func (f *FeeAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("total_fees: %w", err)
		}
		*f = FeeAmount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("total_fees: %w", err)
	}
	*f = FeeAmount(n.String())
	return nil
}

func (f FeeAmount) String() string {
	return string(f)
}

// StatusError is returned for any non-200 response.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("toncenter %s: status %d: %s", e.Endpoint, e.Code, e.Body)
}
