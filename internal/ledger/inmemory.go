package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// inMemoryLedger mirrors the observable semantics of PostgresLedger behind a
// mutex: insert-once per transaction id, referential checks before any
// mutation, conditional debit, all-or-nothing application.
type inMemoryLedger struct {
	mu       sync.RWMutex
	nextID   AccountID
	accounts map[AccountID]Account
	byID     map[TransactionID]Transaction
	entries  []Transaction
}

// NewInMemory creates a concurrency-safe in-memory ledger used by unit tests
// and no-database dev mode.
func NewInMemory() Service {
	return &inMemoryLedger{
		accounts: make(map[AccountID]Account),
		byID:     make(map[TransactionID]Transaction),
	}
}

func (l *inMemoryLedger) CreateAccount(_ context.Context, description string) (Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	account := Account{ID: l.nextID, Balance: decimal.Zero, Description: description}
	l.accounts[account.ID] = account
	return account, nil
}

func (l *inMemoryLedger) Account(_ context.Context, id AccountID) (Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	account, ok := l.accounts[id]
	if !ok {
		return Account{}, &AccountNotFoundError{Account: id}
	}
	return account, nil
}

func (l *inMemoryLedger) MoveMoney(_ context.Context, from, to *AccountID, id TransactionID, amount decimal.Decimal) (Transaction, error) {
	if err := validateMove(from, to, amount); err != nil {
		return Transaction{}, err
	}
	if id.IsZero() {
		return Transaction{}, fmt.Errorf("%w: transaction id must be set", ErrInvalidArgument)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.byID[id]; ok {
		if sameAccountID(existing.From, from) && sameAccountID(existing.To, to) && existing.Amount.Equal(amount) {
			return existing, nil
		}
		return Transaction{}, &DuplicateTransactionError{Transaction: id}
	}

	if from != nil {
		if _, ok := l.accounts[*from]; !ok {
			return Transaction{}, &AccountNotFoundError{Account: *from}
		}
	}
	if to != nil {
		if _, ok := l.accounts[*to]; !ok {
			return Transaction{}, &AccountNotFoundError{Account: *to}
		}
	}

	if from != nil {
		source := l.accounts[*from]
		if source.Balance.LessThan(amount) {
			// Nothing is recorded: a retry with the same id may succeed once
			// the balance allows it, matching the transactional backend.
			return Transaction{}, &InsufficientFundsError{Account: *from}
		}
		source.Balance = source.Balance.Sub(amount)
		l.accounts[*from] = source
	}
	if to != nil {
		dest := l.accounts[*to]
		dest.Balance = dest.Balance.Add(amount)
		l.accounts[*to] = dest
	}

	transaction := Transaction{
		ID:        id,
		From:      cloneAccountID(from),
		To:        cloneAccountID(to),
		Amount:    amount,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}
	l.byID[id] = transaction
	l.entries = append(l.entries, transaction)
	return transaction, nil
}

func (l *inMemoryLedger) Transactions(_ context.Context, account AccountID, opts ListOptions) ([]Transaction, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	l.mu.RLock()
	var matched []Transaction
	for i := len(l.entries) - 1; i >= 0; i-- {
		t := l.entries[i]
		touches := (t.From != nil && *t.From == account) || (t.To != nil && *t.To == account)
		if !touches {
			continue
		}
		if opts.From != nil && !t.Timestamp.After(*opts.From) {
			continue
		}
		if opts.To != nil && !t.Timestamp.Before(*opts.To) {
			continue
		}
		matched = append(matched, t)
	}
	l.mu.RUnlock()

	// Entries were collected newest-inserted first; make the ordering
	// strictly timestamp-descending like the SQL query.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}
