package balance

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// CreditKeyPrefix namespaces the idempotency markers written by CreditOnce.
const CreditKeyPrefix = "order_credit:"

func BalanceKey(accountID string) string {
	return accountID + "_balance"
}

func CardCountKey(accountID string) string {
	return accountID + "_card_count"
}

func CreditKey(creditID string) string {
	return CreditKeyPrefix + creditID
}

// creditOnceScript applies an increment only if the marker key was not set
// before. A missing balance starts from ARGV[3]. Returns {applied, value}
// where value is the balance after the call.
var creditOnceScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX') then
	redis.call('SET', KEYS[2], ARGV[3], 'NX')
	return {1, redis.call('INCRBYFLOAT', KEYS[2], ARGV[2])}
end
local current = redis.call('GET', KEYS[2])
if not current then
	current = '0'
end
return {0, current}
`)

// Store is the counter store holding live balances and card counts. Every
// mutation is a single atomic Redis increment.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Increment adds amount to the float counter at key and returns the new value.
func (s *Store) Increment(ctx context.Context, key string, amount float64) (float64, error) {
	value, err := s.rdb.IncrByFloat(ctx, key, amount).Result()
	if err != nil {
		return 0, fmt.Errorf("incrbyfloat %s: %w", key, err)
	}
	return value, nil
}

// Get returns the counter at key; ok is false when the key does not exist.
func (s *Store) Get(ctx context.Context, key string) (value float64, ok bool, err error) {
	value, err = s.rdb.Get(ctx, key).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) AddBalance(ctx context.Context, accountID string, amount float64) (float64, error) {
	return s.Increment(ctx, BalanceKey(accountID), amount)
}

func (s *Store) AddCards(ctx context.Context, accountID string, n int64) (int64, error) {
	key := CardCountKey(accountID)
	value, err := s.rdb.IncrBy(ctx, key, n).Result()
	if err != nil {
		return 0, fmt.Errorf("incrby %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Balance(ctx context.Context, accountID string) (float64, bool, error) {
	return s.Get(ctx, BalanceKey(accountID))
}

func (s *Store) CardCount(ctx context.Context, accountID string) (int64, bool, error) {
	key := CardCountKey(accountID)
	value, err := s.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Seed initialises both counters for an account if they are missing. Existing
// values are left untouched.
func (s *Store) Seed(ctx context.Context, accountID string, balance float64, cards int64) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, BalanceKey(accountID), strconv.FormatFloat(balance, 'f', -1, 64), 0)
		pipe.SetNX(ctx, CardCountKey(accountID), cards, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("seed counters for %s: %w", accountID, err)
	}
	return nil
}

// CreditOnce increments the account balance at most once per creditID. A
// balance that is not in the store yet starts from seed, the ledger value,
// in the same atomic step. A repeated call with the same creditID is a no-op
// and reports applied=false together with the current balance.
func (s *Store) CreditOnce(ctx context.Context, creditID, accountID string, amount, seed float64) (applied bool, value float64, err error) {
	keys := []string{CreditKey(creditID), BalanceKey(accountID)}
	args := []any{
		accountID,
		strconv.FormatFloat(amount, 'f', -1, 64),
		strconv.FormatFloat(seed, 'f', -1, 64),
	}
	res, err := creditOnceScript.Run(ctx, s.rdb, keys, args...).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("credit %s to %s: %w", creditID, accountID, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("credit %s: unexpected script reply %v", creditID, res)
	}

	flag, _ := res[0].(int64)
	raw, _ := res[1].(string)
	value, err = strconv.ParseFloat(raw, 64)
	if err != nil {
		return false, 0, fmt.Errorf("credit %s: parse balance %q: %w", creditID, raw, err)
	}
	return flag == 1, value, nil
}
