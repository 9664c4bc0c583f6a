package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Postgres error codes the transfer path dispatches on.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Constraint names from migrations/000001_init.up.sql. The foreign key that
// fired tells us which side of the transfer referenced a missing account.
const (
	fromAccountConstraint = "transactions_from_account_fkey"
	toAccountConstraint   = "transactions_to_account_fkey"
)

// PostgresLedger implements Service on PostgreSQL. Serialization of concurrent
// transfers is delegated entirely to the database: the primary key on the
// transaction id acts as a compare-and-insert, and the conditional balance
// UPDATE acts as an atomic check-and-mutate. No in-process locks.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// CreateAccount persists a new account with a zero balance.
func (l *PostgresLedger) CreateAccount(ctx context.Context, description string) (Account, error) {
	var id int64
	err := l.db.QueryRow(ctx,
		`INSERT INTO accounts (description, balance) VALUES ($1, 0) RETURNING id`,
		description).Scan(&id)
	if err != nil {
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	return Account{ID: AccountID(id), Balance: decimal.Zero, Description: description}, nil
}

// Account returns the current state of one account.
func (l *PostgresLedger) Account(ctx context.Context, id AccountID) (Account, error) {
	var (
		balance     string
		description string
	)
	err := l.db.QueryRow(ctx,
		`SELECT balance::text, description FROM accounts WHERE id = $1`,
		int64(id)).Scan(&balance, &description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, &AccountNotFoundError{Account: id}
		}
		return Account{}, fmt.Errorf("get account %s: %w", id, err)
	}
	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return Account{}, fmt.Errorf("%w: stored balance %q for account %s: %v", ErrInternal, balance, id, err)
	}
	return Account{ID: id, Balance: amount, Description: description}, nil
}

// MoveMoney applies one transfer as a single database transaction.
//
// The insert goes first so the primary key on the transaction id collapses
// concurrent duplicate submissions into exactly one durable effect, and the
// foreign keys validate both accounts before any balance is touched. The
// conditional debit then enforces balance >= 0 without reading the balance
// first. Everything commits or nothing does.
func (l *PostgresLedger) MoveMoney(ctx context.Context, from, to *AccountID, id TransactionID, amount decimal.Decimal) (Transaction, error) {
	if err := validateMove(from, to, amount); err != nil {
		return Transaction{}, err
	}
	if id.IsZero() {
		return Transaction{}, fmt.Errorf("%w: transaction id must be set", ErrInvalidArgument)
	}

	timestamp := time.Now().UTC().Truncate(time.Millisecond)

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, from_account, to_account, amount, created_at)
         VALUES ($1, $2, $3, $4::numeric, $5)`,
		id.Bytes(), accountParam(from), accountParam(to), amount.String(), timestamp)
	if err != nil {
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) {
			return Transaction{}, fmt.Errorf("insert transaction %s: %w", id, err)
		}
		switch pgErr.Code {
		case pgUniqueViolation:
			// The unit of work is aborted; decide from the committed row.
			_ = tx.Rollback(ctx)
			return l.resolveDuplicate(ctx, from, to, id, amount)
		case pgForeignKeyViolation:
			switch pgErr.ConstraintName {
			case fromAccountConstraint:
				return Transaction{}, &AccountNotFoundError{Account: *from}
			case toAccountConstraint:
				return Transaction{}, &AccountNotFoundError{Account: *to}
			default:
				return Transaction{}, fmt.Errorf("%w: unrecognized constraint %q", ErrInternal, pgErr.ConstraintName)
			}
		default:
			return Transaction{}, fmt.Errorf("insert transaction %s: %w", id, err)
		}
	}

	if from != nil {
		tag, err := tx.Exec(ctx,
			`UPDATE accounts SET balance = balance - $1::numeric WHERE id = $2 AND balance >= $1::numeric`,
			amount.String(), int64(*from))
		if err != nil {
			return Transaction{}, fmt.Errorf("debit account %s: %w", from, err)
		}
		if tag.RowsAffected() != 1 {
			// Existence was already proven by the foreign key, so zero rows
			// can only mean the balance condition failed. The deferred
			// rollback also removes the transaction row inserted above.
			return Transaction{}, &InsufficientFundsError{Account: *from}
		}
	}

	if to != nil {
		tag, err := tx.Exec(ctx,
			`UPDATE accounts SET balance = balance + $1::numeric WHERE id = $2`,
			amount.String(), int64(*to))
		if err != nil {
			return Transaction{}, fmt.Errorf("credit account %s: %w", to, err)
		}
		if tag.RowsAffected() != 1 {
			return Transaction{}, fmt.Errorf("%w: credited account %s vanished mid-transfer", ErrInternal, to)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, fmt.Errorf("commit transfer %s: %w", id, err)
	}

	return Transaction{
		ID:        id,
		From:      cloneAccountID(from),
		To:        cloneAccountID(to),
		Amount:    amount,
		Timestamp: timestamp,
	}, nil
}

// resolveDuplicate runs after a unique violation on the transaction id. An
// identical replay returns the stored row as success; anything else is a
// conflict the caller must resolve with a fresh id.
func (l *PostgresLedger) resolveDuplicate(ctx context.Context, from, to *AccountID, id TransactionID, amount decimal.Decimal) (Transaction, error) {
	existing, err := l.transactionByID(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if existing == nil {
		// Transactions are never deleted, so a conflict without a row means
		// the store broke that invariant.
		return Transaction{}, fmt.Errorf("%w: conflicting transaction %s has disappeared", ErrInternal, id)
	}
	if sameAccountID(existing.From, from) && sameAccountID(existing.To, to) && existing.Amount.Equal(amount) {
		return *existing, nil
	}
	return Transaction{}, &DuplicateTransactionError{Transaction: id}
}

func (l *PostgresLedger) transactionByID(ctx context.Context, id TransactionID) (*Transaction, error) {
	row := l.db.QueryRow(ctx,
		`SELECT id, from_account, to_account, amount::text, created_at
         FROM transactions WHERE id = $1`, id.Bytes())
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return &t, nil
}

// Transactions lists movements touching the account on either side, newest
// first, optionally bounded to timestamp > opts.From and timestamp < opts.To.
func (l *PostgresLedger) Transactions(ctx context.Context, account AccountID, opts ListOptions) ([]Transaction, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := l.db.Query(ctx,
		`SELECT id, from_account, to_account, amount::text, created_at
         FROM transactions
         WHERE (from_account = $1 OR to_account = $1)
           AND ($2::timestamptz IS NULL OR created_at > $2)
           AND ($3::timestamptz IS NULL OR created_at < $3)
         ORDER BY created_at DESC
         LIMIT $4 OFFSET $5`,
		int64(account), opts.From, opts.To, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions for account %s: %w", account, err)
	}
	defer rows.Close()

	var transactions []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("list transactions for account %s: %w", account, err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions for account %s: %w", account, err)
	}
	return transactions, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		idBytes   []byte
		from, to  *int64
		amount    string
		createdAt time.Time
	)
	if err := row.Scan(&idBytes, &from, &to, &amount, &createdAt); err != nil {
		return Transaction{}, err
	}
	id, err := TransactionIDFromBytes(idBytes)
	if err != nil {
		return Transaction{}, err
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("%w: stored amount %q for transaction %s: %v", ErrInternal, amount, id, err)
	}
	return Transaction{
		ID:        id,
		From:      accountFromColumn(from),
		To:        accountFromColumn(to),
		Amount:    value,
		Timestamp: createdAt.UTC(),
	}, nil
}

func accountParam(id *AccountID) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}

func accountFromColumn(v *int64) *AccountID {
	if v == nil {
		return nil
	}
	id := AccountID(*v)
	return &id
}
