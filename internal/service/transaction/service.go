// Package transaction orchestrates deposits and transfers. It never
// mutates balances itself: it sequences ledger calls and appends the
// resulting transaction records.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/apostle/apostle-backend/internal/domain"
	"github.com/apostle/apostle-backend/internal/ledger"
)

const DefaultPageSize = 20

type balanceLedger interface {
	Credit(ctx context.Context, accountNumber string, amount decimal.Decimal) (*domain.Account, error)
	CreditTx(ctx context.Context, tx *sql.Tx, accountNumber string, amount decimal.Decimal) (*domain.Account, error)
	DebitTx(ctx context.Context, tx *sql.Tx, accountNumber string, amount decimal.Decimal) (*domain.Account, error)
	GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	SystemAccount(ctx context.Context) (*domain.Account, error)
}

type transactionStore interface {
	Create(ctx context.Context, t *domain.Transaction) error
	CreateTx(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	ListForAccount(ctx context.Context, accountID uuid.UUID, start, end time.Time, limit, offset int) ([]domain.Transaction, error)
}

type Service struct {
	ledger       balanceLedger
	transactions transactionStore
	db           *sql.DB
	retry        ledger.RetryPolicy
}

func NewService(bl balanceLedger, transactions transactionStore, db *sql.DB, retry ledger.RetryPolicy) *Service {
	return &Service{
		ledger:       bl,
		transactions: transactions,
		db:           db,
		retry:        retry,
	}
}

// Response is the caller-facing projection of a transaction record: the
// record itself plus the receiver's display name.
type Response struct {
	Reference    string
	Amount       decimal.Decimal
	Type         domain.TransactionType
	Status       domain.TransactionStatus
	Note         string
	Timestamp    time.Time
	ReceiverName string
}

func (s *Service) TransactionByReference(ctx context.Context, reference string) (*Response, error) {
	t, err := s.transactions.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("TransactionByReference: %w", domain.ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("TransactionByReference: %w", err)
	}
	return s.project(ctx, t)
}

// TransactionsForAccount returns the account's history within [start,
// end]: DEBIT records it sent and CREDIT records it received, newest
// first, paginated.
func (s *Service) TransactionsForAccount(ctx context.Context, accountID uuid.UUID, start, end time.Time, page, size int) ([]Response, error) {
	if size <= 0 {
		size = DefaultPageSize
	}
	if page < 0 {
		page = 0
	}

	records, err := s.transactions.ListForAccount(ctx, accountID, start, end, size, page*size)
	if err != nil {
		return nil, fmt.Errorf("TransactionsForAccount: %w", err)
	}

	// One name lookup per distinct counterparty, not per record.
	names := make(map[string]string)
	responses := make([]Response, 0, len(records))
	for i := range records {
		t := &records[i]
		name, ok := names[t.ReceiverAccountNumber]
		if !ok {
			account, err := s.ledger.GetAccountByNumber(ctx, t.ReceiverAccountNumber)
			if err != nil {
				return nil, fmt.Errorf("TransactionsForAccount: %w", err)
			}
			name = account.Name
			names[t.ReceiverAccountNumber] = name
		}
		responses = append(responses, newResponse(t, name))
	}
	return responses, nil
}

func (s *Service) project(ctx context.Context, t *domain.Transaction) (*Response, error) {
	receiver, err := s.ledger.GetAccountByNumber(ctx, t.ReceiverAccountNumber)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	r := newResponse(t, receiver.Name)
	return &r, nil
}

func newResponse(t *domain.Transaction, receiverName string) Response {
	return Response{
		Reference:    t.Reference,
		Amount:       t.Amount,
		Type:         t.Type,
		Status:       t.Status,
		Note:         t.Note,
		Timestamp:    t.CreatedAt,
		ReceiverName: receiverName,
	}
}
