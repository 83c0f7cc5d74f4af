// Package ledger holds the only code path allowed to mutate account
// balances. Every mutation is a read-modify-conditional-write against the
// account's version stamp, retried with bounded exponential backoff; there
// are no in-process locks.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/apostle/apostle-backend/internal/domain"
	"github.com/apostle/apostle-backend/internal/logging"
)

type accountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	GetByAccountNumberTx(ctx context.Context, tx *sql.Tx, accountNumber string) (*domain.Account, error)
	ExistsByAccountNumber(ctx context.Context, accountNumber string) (bool, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Account, error)
	Create(ctx context.Context, account *domain.Account) error
	CreateIfAbsent(ctx context.Context, account *domain.Account) error
	UpdateBalance(ctx context.Context, id uuid.UUID, newBalance decimal.Decimal, expectedVersion int64) error
	UpdateBalanceTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance decimal.Decimal, expectedVersion int64) error
}

type userStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type Service struct {
	accounts accountStore
	users    userStore
	retry    RetryPolicy
}

func NewService(accounts accountStore, users userStore, retry RetryPolicy) *Service {
	return &Service{accounts: accounts, users: users, retry: retry}
}

// Credit adds amount to the account's balance. The write is conditioned
// on the version stamp observed at read time and retried per the policy
// when a concurrent writer wins the race.
func (s *Service) Credit(ctx context.Context, accountNumber string, amount decimal.Decimal) (*domain.Account, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("Credit: %w", domain.ErrInvalidAmount)
	}

	var updated *domain.Account
	err := s.retry.Do(ctx, func() error {
		account, err := s.GetAccountByNumber(ctx, accountNumber)
		if err != nil {
			return err
		}

		newBalance := account.Balance.Add(amount)
		if err := s.accounts.UpdateBalance(ctx, account.ID, newBalance, account.Version); err != nil {
			return fmt.Errorf("Credit: %w", err)
		}

		account.Balance = newBalance
		account.Version++
		updated = account
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Debug("account credited",
		"account_number", accountNumber,
		"amount", amount,
	)
	return updated, nil
}

// Debit subtracts amount from the account's balance. Insufficient balance
// is checked against the freshly read state on every attempt and is never
// retried.
func (s *Service) Debit(ctx context.Context, accountNumber string, amount decimal.Decimal) (*domain.Account, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("Debit: %w", domain.ErrInvalidAmount)
	}

	var updated *domain.Account
	err := s.retry.Do(ctx, func() error {
		account, err := s.GetAccountByNumber(ctx, accountNumber)
		if err != nil {
			return err
		}

		if account.Balance.LessThan(amount) {
			return fmt.Errorf("Debit: %w", domain.ErrInsufficientBalance)
		}

		newBalance := account.Balance.Sub(amount)
		if err := s.accounts.UpdateBalance(ctx, account.ID, newBalance, account.Version); err != nil {
			return fmt.Errorf("Debit: %w", err)
		}

		account.Balance = newBalance
		account.Version++
		updated = account
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Debug("account debited",
		"account_number", accountNumber,
		"amount", amount,
	)
	return updated, nil
}

// CreditTx is a single-attempt credit inside a caller-owned transaction.
// The caller composes it with other mutations and owns the retry loop;
// a version conflict propagates out so the whole transaction can be
// rolled back and rerun.
func (s *Service) CreditTx(ctx context.Context, tx *sql.Tx, accountNumber string, amount decimal.Decimal) (*domain.Account, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("CreditTx: %w", domain.ErrInvalidAmount)
	}

	account, err := s.accountByNumberTx(ctx, tx, accountNumber)
	if err != nil {
		return nil, err
	}

	newBalance := account.Balance.Add(amount)
	if err := s.accounts.UpdateBalanceTx(ctx, tx, account.ID, newBalance, account.Version); err != nil {
		return nil, fmt.Errorf("CreditTx: %w", err)
	}

	account.Balance = newBalance
	account.Version++
	return account, nil
}

// DebitTx is the single-attempt, transaction-scoped counterpart of Debit.
func (s *Service) DebitTx(ctx context.Context, tx *sql.Tx, accountNumber string, amount decimal.Decimal) (*domain.Account, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("DebitTx: %w", domain.ErrInvalidAmount)
	}

	account, err := s.accountByNumberTx(ctx, tx, accountNumber)
	if err != nil {
		return nil, err
	}

	if account.Balance.LessThan(amount) {
		return nil, fmt.Errorf("DebitTx: %w", domain.ErrInsufficientBalance)
	}

	newBalance := account.Balance.Sub(amount)
	if err := s.accounts.UpdateBalanceTx(ctx, tx, account.ID, newBalance, account.Version); err != nil {
		return nil, fmt.Errorf("DebitTx: %w", err)
	}

	account.Balance = newBalance
	account.Version++
	return account, nil
}

func (s *Service) GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	account, err := s.accounts.GetByAccountNumber(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("GetAccountByNumber: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetAccountByNumber: %w", err)
	}
	return account, nil
}

func (s *Service) accountByNumberTx(ctx context.Context, tx *sql.Tx, accountNumber string) (*domain.Account, error) {
	account, err := s.accounts.GetByAccountNumberTx(ctx, tx, accountNumber)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("accountByNumberTx: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("accountByNumberTx: %w", err)
	}
	return account, nil
}

// SystemAccount returns the singleton counterparty for deposits, creating
// it with a zero balance on first use. The create-if-absent insert keys
// on the account number, so concurrent first callers converge on one row.
func (s *Service) SystemAccount(ctx context.Context) (*domain.Account, error) {
	account, err := s.accounts.GetByAccountNumber(ctx, domain.SystemAccountNumber)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("SystemAccount: %w", err)
	}

	system := &domain.Account{
		ID:            uuid.New(),
		AccountNumber: domain.SystemAccountNumber,
		Name:          "Platform System Account",
		Balance:       decimal.Zero,
		AccountType:   domain.AccountTypeSystem,
		Version:       0,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.accounts.CreateIfAbsent(ctx, system); err != nil {
		return nil, fmt.Errorf("SystemAccount: %w", err)
	}

	account, err = s.accounts.GetByAccountNumber(ctx, domain.SystemAccountNumber)
	if err != nil {
		return nil, fmt.Errorf("SystemAccount: %w", err)
	}
	return account, nil
}

// CreateAccountForUser allocates a fresh account with a store-unique
// account number and a zero balance.
func (s *Service) CreateAccountForUser(ctx context.Context, user *domain.User, accountType domain.AccountType) (*domain.Account, error) {
	accountNumber, err := s.uniqueAccountNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("CreateAccountForUser: %w", err)
	}

	account := &domain.Account{
		ID:            uuid.New(),
		AccountNumber: accountNumber,
		Name:          user.Name,
		Balance:       decimal.Zero,
		AccountType:   accountType,
		Version:       0,
		UserID:        &user.ID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("CreateAccountForUser: %w", err)
	}

	logging.FromContext(ctx).Info("account created",
		"account_id", account.ID,
		"account_number", account.AccountNumber,
		"user_id", user.ID,
	)
	return account, nil
}

// AddSubAccount allocates an additional savings account for the
// authenticated user.
func (s *Service) AddSubAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("AddSubAccount: %w", domain.ErrUserNotFound)
		}
		return nil, fmt.Errorf("AddSubAccount: %w", err)
	}
	return s.CreateAccountForUser(ctx, user, domain.AccountTypeSavings)
}

func (s *Service) Balance(ctx context.Context, accountNumber string) (decimal.Decimal, error) {
	account, err := s.GetAccountByNumber(ctx, accountNumber)
	if err != nil {
		return decimal.Zero, fmt.Errorf("Balance: %w", err)
	}
	return account.Balance, nil
}

func (s *Service) AccountsForUser(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	accounts, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("AccountsForUser: %w", err)
	}
	return accounts, nil
}

// uniqueAccountNumber draws random ten-digit numerals until the store
// reports one unused. With a 10^10 space the loop terminates almost
// immediately; the bound guards against a misbehaving store.
func (s *Service) uniqueAccountNumber(ctx context.Context) (string, error) {
	const maxDraws = 10
	for range maxDraws {
		accountNumber, err := generateAccountNumber()
		if err != nil {
			return "", err
		}
		exists, err := s.accounts.ExistsByAccountNumber(ctx, accountNumber)
		if err != nil {
			return "", err
		}
		if !exists {
			return accountNumber, nil
		}
	}
	return "", fmt.Errorf("uniqueAccountNumber: exhausted %d draws", maxDraws)
}
