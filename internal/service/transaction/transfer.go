package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/apostle/apostle-backend/internal/domain"
	"github.com/apostle/apostle-backend/internal/ledger"
	"github.com/apostle/apostle-backend/internal/logging"
)

type TransferRequest struct {
	SenderAccountNumber   string
	ReceiverAccountNumber string
	Amount                decimal.Decimal
	Note                  string
}

// Transfer moves amount between two accounts. The debit, the credit and
// both transaction records commit in one database transaction, so the
// operation is all-or-nothing: there is no observable state in which the
// sender has been debited without the receiver credited. A version
// conflict on either account rolls the whole transaction back and reruns
// it under the retry policy.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*Response, error) {
	if err := validateTransfer(req); err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}

	sender, err := s.ledger.GetAccountByNumber(ctx, req.SenderAccountNumber)
	if err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}
	receiver, err := s.ledger.GetAccountByNumber(ctx, req.ReceiverAccountNumber)
	if err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}

	retryable := func(err error) bool {
		// A reference collision aborts the transaction, so it reruns
		// with fresh references like any other retryable failure.
		return ledger.Retryable(err) || errors.Is(err, domain.ErrDuplicateReference)
	}

	var debitRecord *domain.Transaction
	err = s.retry.DoIf(ctx, retryable, func() error {
		record, err := s.executeTransfer(ctx, req, sender.Name, receiver.Name)
		if err != nil {
			return err
		}
		debitRecord = record
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}

	logging.FromContext(ctx).Info("transfer completed",
		"reference", debitRecord.Reference,
		"sender_account", req.SenderAccountNumber,
		"receiver_account", req.ReceiverAccountNumber,
		"amount", req.Amount,
	)

	r := newResponse(debitRecord, receiver.Name)
	return &r, nil
}

func validateTransfer(req TransferRequest) error {
	if req.SenderAccountNumber == req.ReceiverAccountNumber {
		return domain.ErrSelfTransfer
	}
	if req.Amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	return nil
}

func (s *Service) executeTransfer(ctx context.Context, req TransferRequest, senderName, receiverName string) (*domain.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("executeTransfer: begin tx: %w", err)
	}
	defer tx.Rollback()

	sender, err := s.ledger.DebitTx(ctx, tx, req.SenderAccountNumber, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("executeTransfer: debit: %w", err)
	}
	receiver, err := s.ledger.CreditTx(ctx, tx, req.ReceiverAccountNumber, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("executeTransfer: credit: %w", err)
	}

	now := time.Now().UTC()

	debit := &domain.Transaction{
		ID:                    uuid.New(),
		Reference:             newTransactionReference(),
		SenderAccountID:       sender.ID,
		SenderAccountNumber:   sender.AccountNumber,
		ReceiverAccountID:     receiver.ID,
		ReceiverAccountNumber: receiver.AccountNumber,
		Amount:                req.Amount,
		Type:                  domain.TransactionTypeDebit,
		Status:                domain.TransactionStatusSuccess,
		Note:                  fmt.Sprintf("Transfer to %s: %s", receiverName, req.Note),
		CreatedAt:             now,
	}
	if err := s.transactions.CreateTx(ctx, tx, debit); err != nil {
		return nil, fmt.Errorf("executeTransfer: debit record: %w", err)
	}

	credit := &domain.Transaction{
		ID:                    uuid.New(),
		Reference:             newTransactionReference(),
		SenderAccountID:       sender.ID,
		SenderAccountNumber:   sender.AccountNumber,
		ReceiverAccountID:     receiver.ID,
		ReceiverAccountNumber: receiver.AccountNumber,
		Amount:                req.Amount,
		Type:                  domain.TransactionTypeCredit,
		Status:                domain.TransactionStatusSuccess,
		Note:                  fmt.Sprintf("Received from %s: %s", senderName, req.Note),
		CreatedAt:             now,
	}
	if err := s.transactions.CreateTx(ctx, tx, credit); err != nil {
		return nil, fmt.Errorf("executeTransfer: credit record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("executeTransfer: commit: %w", err)
	}
	return debit, nil
}
