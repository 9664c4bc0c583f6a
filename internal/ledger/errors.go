package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument rejects malformed input: non-positive amounts, a
	// transfer with neither side set, unparseable identifiers.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAccountNotFound occurs when a referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientFunds occurs when the source account cannot cover the
	// requested amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction indicates a transaction id was reused with
	// different parameters. An exact replay is not an error.
	ErrDuplicateTransaction = errors.New("duplicate transaction id")

	// ErrInternal marks infrastructure failures and broken store invariants.
	ErrInternal = errors.New("internal ledger error")
)

// AccountNotFoundError identifies which account was missing.
type AccountNotFoundError struct {
	Account AccountID
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("account %s not found", e.Account)
}

func (e *AccountNotFoundError) Unwrap() error { return ErrAccountNotFound }

// InsufficientFundsError identifies the account that could not cover a debit.
type InsufficientFundsError struct {
	Account AccountID
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("account %s does not have enough funds", e.Account)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// DuplicateTransactionError identifies the conflicting transaction id.
type DuplicateTransactionError struct {
	Transaction TransactionID
}

func (e *DuplicateTransactionError) Error() string {
	return fmt.Sprintf("transaction %s already exists with different parameters", e.Transaction)
}

func (e *DuplicateTransactionError) Unwrap() error { return ErrDuplicateTransaction }
