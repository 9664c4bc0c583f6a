package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/clearbook/clearbook/internal/ledger"
)

// RegisterLedgerRoutes wires account and transaction endpoints.
func RegisterLedgerRoutes(r fiber.Router, h *ledger.Handler, transferLimit fiber.Handler) {
	r.Post("/accounts", h.CreateAccount)
	r.Get("/accounts/:id", h.GetAccount)
	r.Post("/transactions", transferLimit, h.CreateTransaction)
	r.Get("/transactions", h.ListTransactions)
	r.Post("/transactions/id", h.GenerateTransactionID)
}
