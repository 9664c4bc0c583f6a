package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// TransactionID is the 128-bit idempotency key of a transfer. Transport form
// is the canonical UUID string; storage form is the fixed 16-byte big-endian
// encoding of the high 64 bits followed by the low 64 bits.
type TransactionID uuid.UUID

// NewTransactionID generates a fresh random transaction id.
func NewTransactionID() TransactionID {
	return TransactionID(uuid.New())
}

// ParseTransactionID reads the canonical string form.
func ParseTransactionID(s string) (TransactionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return TransactionID{}, fmt.Errorf("%w: malformed transaction id %q", ErrInvalidArgument, s)
	}
	return TransactionID(u), nil
}

// TransactionIDFromBytes reads the 16-byte storage encoding.
func TransactionIDFromBytes(b []byte) (TransactionID, error) {
	u, err := uuid.FromBytes(b)
	if err != nil {
		return TransactionID{}, fmt.Errorf("%w: transaction id must be 16 bytes, got %d", ErrInternal, len(b))
	}
	return TransactionID(u), nil
}

// Bytes returns the storage encoding. uuid.UUID already holds its value as
// big-endian high||low bytes, so this is a defensive copy of that layout.
func (id TransactionID) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, id[:])
	return b
}

func (id TransactionID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether the id is the all-zero value, which is never a valid
// transfer key.
func (id TransactionID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

// MarshalText implements encoding.TextMarshaler using the transport form.
func (id TransactionID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *TransactionID) UnmarshalText(text []byte) error {
	parsed, err := ParseTransactionID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
