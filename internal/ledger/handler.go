package ledger

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/clearbook/clearbook/internal/notification"
)

// Handler exposes the ledger over HTTP.
type Handler struct {
	service  Service
	notifier notification.Notifier
}

// NewHandler builds a ledger HTTP handler.
func NewHandler(service Service, notifier notification.Notifier) *Handler {
	return &Handler{service: service, notifier: notifier}
}

type createAccountRequest struct {
	Description string `json:"description"`
}

type accountResponse struct {
	ID          AccountID       `json:"id"`
	Balance     decimal.Decimal `json:"balance"`
	Description string          `json:"description"`
}

type createTransactionRequest struct {
	From   *AccountID      `json:"from"`
	To     *AccountID      `json:"to"`
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
}

type transactionResponse struct {
	ID        TransactionID   `json:"id"`
	From      *AccountID      `json:"from,omitempty"`
	To        *AccountID      `json:"to,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// transactionListEntry renders one movement from the queried account's point
// of view: a negative amount when the account was the source, and the
// counterparty on the other side when there is one.
type transactionListEntry struct {
	ID           TransactionID   `json:"id"`
	Amount       decimal.Decimal `json:"amount"`
	OtherAccount *AccountID      `json:"other_account,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

type transactionListResponse struct {
	Transactions []transactionListEntry `json:"transactions"`
}

// CreateAccount provisions a new zero-balance account.
func (h *Handler) CreateAccount(c *fiber.Ctx) error {
	var req createAccountRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	account, err := h.service.CreateAccount(c.UserContext(), req.Description)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(accountResponse{
		ID:          account.ID,
		Balance:     account.Balance,
		Description: account.Description,
	})
}

// GetAccount returns one account with its current balance.
func (h *Handler) GetAccount(c *fiber.Ctx) error {
	id, err := ParseAccountID(c.Params("id"))
	if err != nil {
		return httpError(err)
	}
	account, err := h.service.Account(c.UserContext(), id)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(accountResponse{
		ID:          account.ID,
		Balance:     account.Balance,
		Description: account.Description,
	})
}

// CreateTransaction applies a money movement. Omitting the id lets the server
// generate one, which forfeits retry safety; clients that retry should obtain
// an id first and reuse it.
func (h *Handler) CreateTransaction(c *fiber.Ctx) error {
	var req createTransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	id := NewTransactionID()
	if req.ID != "" {
		parsed, err := ParseTransactionID(req.ID)
		if err != nil {
			return httpError(err)
		}
		id = parsed
	}

	transaction, err := h.service.MoveMoney(c.UserContext(), req.From, req.To, id, req.Amount)
	if err != nil {
		return httpError(err)
	}

	if h.notifier != nil && transaction.To != nil {
		_ = h.notifier.Send(c.UserContext(), notification.Message{
			Kind:        notification.KindTransfer,
			Destination: transaction.To.String(),
			Body:        fmt.Sprintf("Account %s received %s", transaction.To, transaction.Amount),
		})
	}

	return c.Status(http.StatusCreated).JSON(transactionResponse{
		ID:        transaction.ID,
		From:      transaction.From,
		To:        transaction.To,
		Amount:    transaction.Amount,
		Timestamp: transaction.Timestamp,
	})
}

// ListTransactions returns the paginated history of one account.
func (h *Handler) ListTransactions(c *fiber.Ctx) error {
	account, err := ParseAccountID(c.Query("account"))
	if err != nil {
		return httpError(err)
	}

	var opts ListOptions
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid limit")
		}
		opts.Limit = limit
	}
	if v := c.Query("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid offset")
		}
		opts.Offset = offset
	}
	if v := c.Query("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid from timestamp")
		}
		opts.From = &from
	}
	if v := c.Query("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid to timestamp")
		}
		opts.To = &to
	}

	transactions, err := h.service.Transactions(c.UserContext(), account, opts)
	if err != nil {
		return httpError(err)
	}

	entries := make([]transactionListEntry, 0, len(transactions))
	for _, t := range transactions {
		entry := transactionListEntry{ID: t.ID, Amount: t.Amount, Timestamp: t.Timestamp}
		if t.From != nil && *t.From == account {
			entry.Amount = t.Amount.Neg()
			entry.OtherAccount = t.To
		} else {
			entry.OtherAccount = t.From
		}
		entries = append(entries, entry)
	}

	return c.Status(http.StatusOK).JSON(transactionListResponse{Transactions: entries})
}

// GenerateTransactionID hands out a fresh id for clients that want safe
// retries.
func (h *Handler) GenerateTransactionID(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(http.StatusCreated).SendString(NewTransactionID().String())
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDuplicateTransaction):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
