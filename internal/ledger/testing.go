package ledger

import "github.com/shopspring/decimal"

// SeedBalance is a test helper that sets an account balance directly when
// using the in-memory ledger.
func SeedBalance(s Service, id AccountID, balance decimal.Decimal) {
	if mem, ok := s.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		account, ok := mem.accounts[id]
		if !ok {
			return
		}
		account.Balance = balance
		mem.accounts[id] = account
	}
}
