package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/apostle/apostle-backend/internal/domain"
	"github.com/apostle/apostle-backend/internal/logging"
)

type DepositRequest struct {
	ReceiverAccountNumber string
	Amount                decimal.Decimal
	Note                  string
}

// Deposit credits the receiver from outside the ledger. The SYSTEM
// account is recorded as the sender; its balance is not touched, it is
// the unbounded source money enters through.
func (s *Service) Deposit(ctx context.Context, req DepositRequest) (*Response, error) {
	if req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("Deposit: %w", domain.ErrInvalidAmount)
	}

	system, err := s.ledger.SystemAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}

	receiver, err := s.ledger.GetAccountByNumber(ctx, req.ReceiverAccountNumber)
	if err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}

	// The ledger already retries version conflicts internally; this
	// layer re-runs only when the store itself hiccuped.
	transientOnly := func(err error) bool { return errors.Is(err, domain.ErrTransientStore) }
	err = s.retry.DoIf(ctx, transientOnly, func() error {
		_, err := s.ledger.Credit(ctx, req.ReceiverAccountNumber, req.Amount)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}

	record := &domain.Transaction{
		ID:                    uuid.New(),
		SenderAccountID:       system.ID,
		SenderAccountNumber:   system.AccountNumber,
		ReceiverAccountID:     receiver.ID,
		ReceiverAccountNumber: receiver.AccountNumber,
		Amount:                req.Amount,
		Type:                  domain.TransactionTypeCredit,
		Status:                domain.TransactionStatusSuccess,
		Note:                  req.Note,
		CreatedAt:             time.Now().UTC(),
	}
	if err := s.appendRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}

	logging.FromContext(ctx).Info("deposit completed",
		"reference", record.Reference,
		"receiver_account", receiver.AccountNumber,
		"amount", req.Amount,
	)

	r := newResponse(record, receiver.Name)
	return &r, nil
}

// appendRecord writes a record with a freshly generated reference,
// drawing a new one if the store reports a collision.
func (s *Service) appendRecord(ctx context.Context, t *domain.Transaction) error {
	const maxDraws = 3
	for range maxDraws {
		t.Reference = newTransactionReference()
		err := s.transactions.Create(ctx, t)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrDuplicateReference) {
			return err
		}
	}
	return fmt.Errorf("appendRecord: %w after %d draws", domain.ErrDuplicateReference, maxDraws)
}
