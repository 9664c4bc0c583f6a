package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustCreateAccount(t *testing.T, l Service, description string) Account {
	t.Helper()
	account, err := l.CreateAccount(context.Background(), description)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return account
}

func mustBalance(t *testing.T, l Service, id AccountID) decimal.Decimal {
	t.Helper()
	account, err := l.Account(context.Background(), id)
	if err != nil {
		t.Fatalf("get account %s: %v", id, err)
	}
	return account.Balance
}

func TestCreateAccountStartsEmpty(t *testing.T) {
	l := NewInMemory()
	account := mustCreateAccount(t, l, "savings")

	if !account.Balance.IsZero() {
		t.Fatalf("expected zero balance, got %s", account.Balance)
	}
	if account.Description != "savings" {
		t.Fatalf("unexpected description %q", account.Description)
	}

	fetched, err := l.Account(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if fetched.ID != account.ID || !fetched.Balance.IsZero() {
		t.Fatalf("unexpected account %+v", fetched)
	}
}

func TestDepositIncreasesBalance(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	account := mustCreateAccount(t, l, "")

	amount := decimal.RequireFromString("1.00")
	transaction, err := l.MoveMoney(ctx, nil, &account.ID, NewTransactionID(), amount)
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if transaction.From != nil {
		t.Fatalf("deposit should have no source, got %v", *transaction.From)
	}
	if !mustBalance(t, l, account.ID).Equal(amount) {
		t.Fatalf("expected balance 1.00, got %s", mustBalance(t, l, account.ID))
	}
}

func TestWithdrawalDecreasesBalance(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	account := mustCreateAccount(t, l, "")
	SeedBalance(l, account.ID, decimal.RequireFromString("5.00"))

	transaction, err := l.MoveMoney(ctx, &account.ID, nil, NewTransactionID(), decimal.RequireFromString("1.25"))
	if err != nil {
		t.Fatalf("withdrawal failed: %v", err)
	}
	if transaction.To != nil {
		t.Fatalf("withdrawal should have no destination, got %v", *transaction.To)
	}
	if got := mustBalance(t, l, account.ID); !got.Equal(decimal.RequireFromString("3.75")) {
		t.Fatalf("expected balance 3.75, got %s", got)
	}
}

func TestMoveMoneyIdempotentReplay(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	account := mustCreateAccount(t, l, "")

	id := NewTransactionID()
	amount := decimal.RequireFromString("1.00")

	first, err := l.MoveMoney(ctx, nil, &account.ID, id, amount)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	second, err := l.MoveMoney(ctx, nil, &account.ID, id, amount)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	if first.ID != second.ID || !first.Amount.Equal(second.Amount) || !first.Timestamp.Equal(second.Timestamp) {
		t.Fatalf("replay returned a different transaction: %+v vs %+v", first, second)
	}
	if got := mustBalance(t, l, account.ID); !got.Equal(amount) {
		t.Fatalf("balance applied more than once: %s", got)
	}
}

func TestMoveMoneyDuplicateIDConflict(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	a := mustCreateAccount(t, l, "")
	b := mustCreateAccount(t, l, "")
	SeedBalance(l, a.ID, decimal.RequireFromString("10.00"))

	id := NewTransactionID()
	if _, err := l.MoveMoney(ctx, &a.ID, &b.ID, id, decimal.RequireFromString("2.00")); err != nil {
		t.Fatalf("first transfer failed: %v", err)
	}

	_, err := l.MoveMoney(ctx, &a.ID, &b.ID, id, decimal.RequireFromString("3.00"))
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate conflict, got %v", err)
	}
	var dup *DuplicateTransactionError
	if !errors.As(err, &dup) || dup.Transaction != id {
		t.Fatalf("conflict should identify transaction %s, got %v", id, err)
	}

	if got := mustBalance(t, l, a.ID); !got.Equal(decimal.RequireFromString("8.00")) {
		t.Fatalf("source balance changed on conflict: %s", got)
	}
	if got := mustBalance(t, l, b.ID); !got.Equal(decimal.RequireFromString("2.00")) {
		t.Fatalf("destination balance changed on conflict: %s", got)
	}
}

func TestMoveMoneyInsufficientFunds(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	a := mustCreateAccount(t, l, "")
	b := mustCreateAccount(t, l, "")
	SeedBalance(l, a.ID, decimal.RequireFromString("10.00"))

	_, err := l.MoveMoney(ctx, &a.ID, &b.ID, NewTransactionID(), decimal.RequireFromString("20.00"))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	var insufficient *InsufficientFundsError
	if !errors.As(err, &insufficient) || insufficient.Account != a.ID {
		t.Fatalf("error should identify source account %s, got %v", a.ID, err)
	}

	if got := mustBalance(t, l, a.ID); !got.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("source balance changed: %s", got)
	}
	if got := mustBalance(t, l, b.ID); !got.IsZero() {
		t.Fatalf("destination balance changed: %s", got)
	}

	// The failed transfer must leave no trace in the log.
	history, err := l.Transactions(ctx, a.ID, ListOptions{})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("failed transfer was recorded: %+v", history)
	}
}

func TestMoveMoneyInsufficientFundsThenRetrySameID(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	account := mustCreateAccount(t, l, "")

	id := NewTransactionID()
	if _, err := l.MoveMoney(ctx, &account.ID, nil, id, decimal.RequireFromString("7.00")); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	// The id was not consumed by the failed attempt, so the caller may retry
	// with it once the balance allows.
	SeedBalance(l, account.ID, decimal.RequireFromString("7.00"))
	if _, err := l.MoveMoney(ctx, &account.ID, nil, id, decimal.RequireFromString("7.00")); err != nil {
		t.Fatalf("retry with same id failed: %v", err)
	}
	if got := mustBalance(t, l, account.ID); !got.IsZero() {
		t.Fatalf("expected zero balance after retry, got %s", got)
	}
}

func TestMoveMoneyUnknownAccount(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	account := mustCreateAccount(t, l, "")
	SeedBalance(l, account.ID, decimal.RequireFromString("10.00"))
	missing := AccountID(999)

	_, err := l.MoveMoney(ctx, &account.ID, &missing, NewTransactionID(), decimal.RequireFromString("1.00"))
	var notFound *AccountNotFoundError
	if !errors.As(err, &notFound) || notFound.Account != missing {
		t.Fatalf("expected not-found for account %s, got %v", missing, err)
	}

	_, err = l.MoveMoney(ctx, &missing, &account.ID, NewTransactionID(), decimal.RequireFromString("1.00"))
	if !errors.As(err, &notFound) || notFound.Account != missing {
		t.Fatalf("expected not-found for account %s, got %v", missing, err)
	}

	if got := mustBalance(t, l, account.ID); !got.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("balance changed on failed transfer: %s", got)
	}
}

func TestMoveMoneyValidation(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	account := mustCreateAccount(t, l, "")

	if _, err := l.MoveMoney(ctx, nil, nil, NewTransactionID(), decimal.RequireFromString("1.00")); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for missing endpoints, got %v", err)
	}
	if _, err := l.MoveMoney(ctx, nil, &account.ID, NewTransactionID(), decimal.Zero); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for zero amount, got %v", err)
	}
	if _, err := l.MoveMoney(ctx, nil, &account.ID, NewTransactionID(), decimal.RequireFromString("-5")); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for negative amount, got %v", err)
	}
	if _, err := l.MoveMoney(ctx, nil, &account.ID, TransactionID{}, decimal.RequireFromString("1.00")); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for zero transaction id, got %v", err)
	}
}

func TestMoveMoneyConservesTotal(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	a := mustCreateAccount(t, l, "")
	b := mustCreateAccount(t, l, "")
	SeedBalance(l, a.ID, decimal.RequireFromString("10.00"))
	SeedBalance(l, b.ID, decimal.RequireFromString("4.50"))

	before := mustBalance(t, l, a.ID).Add(mustBalance(t, l, b.ID))
	if _, err := l.MoveMoney(ctx, &a.ID, &b.ID, NewTransactionID(), decimal.RequireFromString("3.33")); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	after := mustBalance(t, l, a.ID).Add(mustBalance(t, l, b.ID))

	if !before.Equal(after) {
		t.Fatalf("money not conserved: before=%s after=%s", before, after)
	}
}

func TestMoveMoneySelfTransfer(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	account := mustCreateAccount(t, l, "")
	SeedBalance(l, account.ID, decimal.RequireFromString("5.00"))

	if _, err := l.MoveMoney(ctx, &account.ID, &account.ID, NewTransactionID(), decimal.RequireFromString("2.00")); err != nil {
		t.Fatalf("self transfer failed: %v", err)
	}

	if got := mustBalance(t, l, account.ID); !got.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("self transfer changed balance: %s", got)
	}
	history, err := l.Transactions(ctx, account.ID, ListOptions{})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one recorded movement, got %d", len(history))
	}
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	account := mustCreateAccount(t, l, "")
	SeedBalance(l, account.ID, decimal.NewFromInt(1_000))

	const workers = 20
	amount := decimal.NewFromInt(100)

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.MoveMoney(ctx, &account.ID, nil, NewTransactionID(), amount)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientFunds):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if succeeded != 10 {
		t.Fatalf("expected exactly 10 admissible debits, got %d", succeeded)
	}
	if got := mustBalance(t, l, account.ID); !got.IsZero() {
		t.Fatalf("expected zero final balance, got %s", got)
	}
}

func TestTransactionsListOrderingAndPagination(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	account := mustCreateAccount(t, l, "")

	ids := make([]TransactionID, 3)
	for i := range ids {
		ids[i] = NewTransactionID()
		if _, err := l.MoveMoney(ctx, nil, &account.ID, ids[i], decimal.NewFromInt(int64(i+1))); err != nil {
			t.Fatalf("deposit %d failed: %v", i, err)
		}
	}

	history, err := l.Transactions(ctx, account.ID, ListOptions{})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 movements, got %d", len(history))
	}
	// Newest first.
	for i, want := range []TransactionID{ids[2], ids[1], ids[0]} {
		if history[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, history[i].ID)
		}
	}

	page, err := l.Transactions(ctx, account.ID, ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("list with limit: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(page))
	}

	rest, err := l.Transactions(ctx, account.ID, ListOptions{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("list with offset: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != ids[0] {
		t.Fatalf("expected the oldest movement, got %+v", rest)
	}

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	bounded, err := l.Transactions(ctx, account.ID, ListOptions{From: &past, To: &future})
	if err != nil {
		t.Fatalf("list with bounds: %v", err)
	}
	if len(bounded) != 3 {
		t.Fatalf("open window should include everything, got %d", len(bounded))
	}

	none, err := l.Transactions(ctx, account.ID, ListOptions{From: &future})
	if err != nil {
		t.Fatalf("list with future bound: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no movements after %s, got %d", future, len(none))
	}

	none, err = l.Transactions(ctx, account.ID, ListOptions{To: &past})
	if err != nil {
		t.Fatalf("list with past bound: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no movements before %s, got %d", past, len(none))
	}
}
