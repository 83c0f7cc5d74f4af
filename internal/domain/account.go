package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountTypeSavings AccountType = "SAVINGS"
	AccountTypeSystem  AccountType = "SYSTEM"
)

// SystemAccountNumber is the business identifier of the singleton account
// that acts as the counterparty for deposits. Money entering the ledger is
// recorded as sent from this account; its balance is never mutated.
const SystemAccountNumber = "SYSTEM"

func (t AccountType) IsValid() bool {
	return t == AccountTypeSavings || t == AccountTypeSystem
}

type Account struct {
	ID            uuid.UUID
	AccountNumber string
	Name          string
	Balance       decimal.Decimal
	AccountType   AccountType
	Version       int64
	UserID        *uuid.UUID
	CreatedAt     time.Time
}

func (a *Account) IsSystem() bool {
	return a.AccountType == AccountTypeSystem
}
