package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/apostle/apostle-backend/internal/auth"
	"github.com/apostle/apostle-backend/internal/domain"
	"github.com/apostle/apostle-backend/internal/logging"
)

type accountLedger interface {
	AddSubAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	AccountsForUser(ctx context.Context, userID uuid.UUID) ([]domain.Account, error)
}

type AccountHandler struct {
	ledger accountLedger
}

func NewAccountHandler(ledger accountLedger) *AccountHandler {
	return &AccountHandler{ledger: ledger}
}

type accountDTO struct {
	AccountNumber string          `json:"account_number"`
	Name          string          `json:"name"`
	Balance       decimal.Decimal `json:"balance"`
	AccountType   string          `json:"account_type"`
}

func newAccountDTO(a *domain.Account) accountDTO {
	return accountDTO{
		AccountNumber: a.AccountNumber,
		Name:          a.Name,
		Balance:       a.Balance,
		AccountType:   string(a.AccountType),
	}
}

// CreateSubAccount opens an additional savings account for the
// authenticated user.
func (h *AccountHandler) CreateSubAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	account, err := h.ledger.AddSubAccount(r.Context(), userID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to create sub account", "error", err, "user_id", userID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, newAccountDTO(account))
}

type balanceResponse struct {
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
}

// Balance returns the current balance of one of the authenticated
// user's accounts. Asking for an account you do not own reads the same
// as asking for one that does not exist.
func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	accountNumber := r.PathValue("accountNumber")
	if accountNumber == "" {
		RespondValidationError(w, []FieldError{{Field: "accountNumber", Message: "required"}})
		return
	}

	account, err := h.ledger.GetAccountByNumber(r.Context(), accountNumber)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	if account.UserID == nil || *account.UserID != userID {
		RespondAppError(w, ErrAccountNotFound, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, balanceResponse{
		AccountNumber: account.AccountNumber,
		Balance:       account.Balance,
	})
}

func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	accounts, err := h.ledger.AccountsForUser(r.Context(), userID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	out := make([]accountDTO, 0, len(accounts))
	for i := range accounts {
		out = append(out, newAccountDTO(&accounts[i]))
	}
	RespondSuccess(w, http.StatusOK, out)
}
