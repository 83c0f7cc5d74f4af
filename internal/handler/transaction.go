package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/apostle/apostle-backend/internal/auth"
	"github.com/apostle/apostle-backend/internal/domain"
	"github.com/apostle/apostle-backend/internal/logging"
	"github.com/apostle/apostle-backend/internal/service/transaction"
)

// defaultHistoryWindow bounds an unfiltered history request to the last
// 30 days.
const defaultHistoryWindow = 30 * 24 * time.Hour

type transactionService interface {
	Deposit(ctx context.Context, req transaction.DepositRequest) (*transaction.Response, error)
	Transfer(ctx context.Context, req transaction.TransferRequest) (*transaction.Response, error)
	TransactionByReference(ctx context.Context, reference string) (*transaction.Response, error)
	TransactionsForAccount(ctx context.Context, accountID uuid.UUID, start, end time.Time, page, size int) ([]transaction.Response, error)
}

type accountResolver interface {
	AccountsForUser(ctx context.Context, userID uuid.UUID) ([]domain.Account, error)
}

type TransactionHandler struct {
	svc      transactionService
	accounts accountResolver
}

func NewTransactionHandler(svc transactionService, accounts accountResolver) *TransactionHandler {
	return &TransactionHandler{svc: svc, accounts: accounts}
}

type transactionDTO struct {
	Reference    string          `json:"transaction_reference"`
	Amount       decimal.Decimal `json:"amount"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	Note         string          `json:"note"`
	Timestamp    time.Time       `json:"timestamp"`
	ReceiverName string          `json:"receiver_name"`
}

func newTransactionDTO(r *transaction.Response) transactionDTO {
	return transactionDTO{
		Reference:    r.Reference,
		Amount:       r.Amount,
		Type:         string(r.Type),
		Status:       string(r.Status),
		Note:         r.Note,
		Timestamp:    r.Timestamp,
		ReceiverName: r.ReceiverName,
	}
}

type depositRequest struct {
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
	Note          string          `json:"note"`
}

func (r depositRequest) Validate() []FieldError {
	var errs []FieldError
	if r.AccountNumber == "" {
		errs = append(errs, FieldError{Field: "account_number", Message: "required"})
	}
	if r.Amount.Sign() <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than zero"})
	}
	return errs
}

func (h *TransactionHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	resp, err := h.svc.Deposit(r.Context(), transaction.DepositRequest{
		ReceiverAccountNumber: req.AccountNumber,
		Amount:                req.Amount,
		Note:                  req.Note,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("deposit failed", "error", err, "account_number", req.AccountNumber)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, newTransactionDTO(resp))
}

type transferRequest struct {
	SenderAccountNumber   string          `json:"sender_account_number"`
	ReceiverAccountNumber string          `json:"receiver_account_number"`
	Amount                decimal.Decimal `json:"amount"`
	Note                  string          `json:"note"`
}

func (r transferRequest) Validate() []FieldError {
	var errs []FieldError
	if r.SenderAccountNumber == "" {
		errs = append(errs, FieldError{Field: "sender_account_number", Message: "required"})
	}
	if r.ReceiverAccountNumber == "" {
		errs = append(errs, FieldError{Field: "receiver_account_number", Message: "required"})
	}
	if r.Amount.Sign() <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than zero"})
	}
	return errs
}

// Transfer moves money between two accounts. The sender account must
// belong to the authenticated user.
func (h *TransactionHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	if !h.ownsAccountNumber(r.Context(), userID, req.SenderAccountNumber) {
		RespondAppError(w, ErrAccountNotFound, nil)
		return
	}

	resp, err := h.svc.Transfer(r.Context(), transaction.TransferRequest{
		SenderAccountNumber:   req.SenderAccountNumber,
		ReceiverAccountNumber: req.ReceiverAccountNumber,
		Amount:                req.Amount,
		Note:                  req.Note,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("transfer failed", "error", err,
			"sender", req.SenderAccountNumber, "receiver", req.ReceiverAccountNumber)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, newTransactionDTO(resp))
}

// History lists transactions for one of the authenticated user's
// accounts within a time window. Without start/end the window defaults
// to the last 30 days.
func (h *TransactionHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	accountID, err := uuid.Parse(r.PathValue("accountID"))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "accountID", Message: "must be a valid uuid"}})
		return
	}

	if !h.ownsAccountID(r.Context(), userID, accountID) {
		RespondAppError(w, ErrAccountNotFound, nil)
		return
	}

	q := r.URL.Query()

	end := time.Now().UTC()
	if v := q.Get("end"); v != "" {
		end, err = parseTime(v, true)
		if err != nil {
			RespondValidationError(w, []FieldError{{Field: "end", Message: "must be RFC3339 or YYYY-MM-DD"}})
			return
		}
	}

	start := end.Add(-defaultHistoryWindow)
	if v := q.Get("start"); v != "" {
		start, err = parseTime(v, false)
		if err != nil {
			RespondValidationError(w, []FieldError{{Field: "start", Message: "must be RFC3339 or YYYY-MM-DD"}})
			return
		}
	}
	if end.Before(start) {
		RespondValidationError(w, []FieldError{{Field: "end", Message: "must not be before start"}})
		return
	}

	// Pages are 1-based on the wire, 0-based in the service.
	page := parsePositiveInt(q.Get("page"), 1)
	size := parsePositiveInt(q.Get("size"), transaction.DefaultPageSize)

	items, err := h.svc.TransactionsForAccount(r.Context(), accountID, start, end, page-1, size)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	out := make([]transactionDTO, 0, len(items))
	for i := range items {
		out = append(out, newTransactionDTO(&items[i]))
	}
	RespondSuccess(w, http.StatusOK, out)
}

func (h *TransactionHandler) ByReference(w http.ResponseWriter, r *http.Request) {
	reference := r.PathValue("reference")
	if reference == "" {
		RespondValidationError(w, []FieldError{{Field: "reference", Message: "required"}})
		return
	}

	resp, err := h.svc.TransactionByReference(r.Context(), reference)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, newTransactionDTO(resp))
}

func (h *TransactionHandler) ownsAccountNumber(ctx context.Context, userID uuid.UUID, accountNumber string) bool {
	accounts, err := h.accounts.AccountsForUser(ctx, userID)
	if err != nil {
		return false
	}
	for i := range accounts {
		if accounts[i].AccountNumber == accountNumber {
			return true
		}
	}
	return false
}

func (h *TransactionHandler) ownsAccountID(ctx context.Context, userID uuid.UUID, accountID uuid.UUID) bool {
	accounts, err := h.accounts.AccountsForUser(ctx, userID)
	if err != nil {
		return false
	}
	for i := range accounts {
		if accounts[i].ID == accountID {
			return true
		}
	}
	return false
}

// parseTime accepts RFC3339 timestamps and bare dates. A bare date used
// as a window end is widened to the end of that day.
func parseTime(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t.UTC(), nil
}

func parsePositiveInt(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
