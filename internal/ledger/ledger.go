package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultListLimit bounds transaction history pages when the caller does not
// supply a limit.
const DefaultListLimit = 100

// AccountID identifies a ledger account. It serializes as a plain decimal
// integer on the wire.
type AccountID int64

// ParseAccountID converts the textual form of an account identifier.
func ParseAccountID(s string) (AccountID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed account id %q", ErrInvalidArgument, s)
	}
	return AccountID(v), nil
}

func (id AccountID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Account is a balance-holding ledger account. Balance never goes below zero;
// it changes only as a side effect of a successful MoveMoney call.
type Account struct {
	ID          AccountID
	Balance     decimal.Decimal
	Description string
}

// Transaction is one applied money movement. A nil From models an external
// deposit, a nil To an external withdrawal; at least one side is always set.
// Transactions are immutable once recorded and never deleted.
type Transaction struct {
	ID        TransactionID
	From      *AccountID
	To        *AccountID
	Amount    decimal.Decimal
	Timestamp time.Time
}

// ListOptions narrows and paginates a transaction history query. Zero values
// fall back to DefaultListLimit and offset 0; nil time bounds are open.
type ListOptions struct {
	Limit  int
	Offset int
	From   *time.Time
	To     *time.Time
}

// Service is the contract implemented by ledger backends (Postgres in
// production, in-memory for tests and dev mode).
type Service interface {
	// CreateAccount persists a new account with a zero balance.
	CreateAccount(ctx context.Context, description string) (Account, error)

	// Account returns the current state of one account.
	Account(ctx context.Context, id AccountID) (Account, error)

	// MoveMoney applies a transfer exactly once per transaction id. A replay
	// with identical parameters returns the previously recorded Transaction;
	// a replay with different parameters fails with ErrDuplicateTransaction.
	// On any failure no balance or log change persists.
	MoveMoney(ctx context.Context, from, to *AccountID, id TransactionID, amount decimal.Decimal) (Transaction, error)

	// Transactions lists movements touching the account on either side,
	// newest first.
	Transactions(ctx context.Context, account AccountID, opts ListOptions) ([]Transaction, error)
}

func validateMove(from, to *AccountID, amount decimal.Decimal) error {
	if from == nil && to == nil {
		return fmt.Errorf("%w: at least one of from/to must be set", ErrInvalidArgument)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidArgument, amount)
	}
	return nil
}

func cloneAccountID(id *AccountID) *AccountID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func sameAccountID(a, b *AccountID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
