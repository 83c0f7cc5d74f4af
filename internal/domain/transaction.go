package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeCredit TransactionType = "CREDIT"
	TransactionTypeDebit  TransactionType = "DEBIT"
)

type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
)

// Transaction is one side of a ledger-affecting operation. A transfer
// produces two records (the sender's DEBIT and the receiver's CREDIT)
// sharing amount and timestamp; a deposit produces a single CREDIT with
// the SYSTEM account as sender. Records are immutable once written.
type Transaction struct {
	Seq                   int64
	ID                    uuid.UUID
	Reference             string
	SenderAccountID       uuid.UUID
	SenderAccountNumber   string
	ReceiverAccountID     uuid.UUID
	ReceiverAccountNumber string
	Amount                decimal.Decimal
	Type                  TransactionType
	Status                TransactionStatus
	Note                  string
	CreatedAt             time.Time
}
