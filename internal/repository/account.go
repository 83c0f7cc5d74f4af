package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/apostle/apostle-backend/internal/domain"
)

const accountColumns = `id, account_number, name, balance, account_type, version, user_id, created_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return r.getByID(ctx, r.db, id)
}

func (r *AccountRepository) getByID(ctx context.Context, q querier, id uuid.UUID) (*domain.Account, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, wrapStoreErr("GetByID", err)
	}
	return a, nil
}

func (r *AccountRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return r.getByAccountNumber(ctx, r.db, accountNumber)
}

// GetByAccountNumberTx reads an account inside a caller-owned transaction.
// A plain read: the version stamp carried on the result is what the
// subsequent conditional write is checked against.
func (r *AccountRepository) GetByAccountNumberTx(ctx context.Context, tx *sql.Tx, accountNumber string) (*domain.Account, error) {
	return r.getByAccountNumber(ctx, tx, accountNumber)
}

func (r *AccountRepository) getByAccountNumber(ctx context.Context, q querier, accountNumber string) (*domain.Account, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, accountNumber,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByAccountNumber: %w", domain.ErrNotFound)
		}
		return nil, wrapStoreErr("GetByAccountNumber", err)
	}
	return a, nil
}

func (r *AccountRepository) ExistsByAccountNumber(ctx context.Context, accountNumber string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE account_number = $1)`, accountNumber,
	).Scan(&exists)
	if err != nil {
		return false, wrapStoreErr("ExistsByAccountNumber", err)
	}
	return exists, nil
}

func (r *AccountRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY created_at`, userID,
	)
	if err != nil {
		return nil, wrapStoreErr("GetByUserID", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByUserID: scan: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("GetByUserID: rows", err)
	}
	return accounts, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, account_number, name, balance, account_type, version, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.ID, account.AccountNumber, account.Name, account.Balance,
		account.AccountType, account.Version, account.UserID, account.CreatedAt,
	)
	if err != nil {
		return wrapStoreErr("Create", err)
	}
	return nil
}

// CreateIfAbsent inserts the account unless one with the same account
// number already exists. Used for the singleton SYSTEM account: under
// concurrent first use at most one row wins, the others fall through to
// a re-read.
func (r *AccountRepository) CreateIfAbsent(ctx context.Context, account *domain.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, account_number, name, balance, account_type, version, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_number) DO NOTHING`,
		account.ID, account.AccountNumber, account.Name, account.Balance,
		account.AccountType, account.Version, account.UserID, account.CreatedAt,
	)
	if err != nil {
		return wrapStoreErr("CreateIfAbsent", err)
	}
	return nil
}

// UpdateBalance performs the compare-and-swap write: the balance is
// stored and the version bumped only if the row still carries the version
// the caller read. Zero rows affected means a concurrent writer won the
// race and the caller must re-read and retry.
func (r *AccountRepository) UpdateBalance(ctx context.Context, id uuid.UUID, newBalance decimal.Decimal, expectedVersion int64) error {
	return r.updateBalance(ctx, r.db, id, newBalance, expectedVersion)
}

// UpdateBalanceTx is the same conditional write issued inside a
// caller-owned transaction.
func (r *AccountRepository) UpdateBalanceTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance decimal.Decimal, expectedVersion int64) error {
	return r.updateBalance(ctx, tx, id, newBalance, expectedVersion)
}

func (r *AccountRepository) updateBalance(ctx context.Context, q querier, id uuid.UUID, newBalance decimal.Decimal, expectedVersion int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, version = version + 1 WHERE id = $2 AND version = $3`,
		newBalance, id, expectedVersion,
	)
	if err != nil {
		return wrapStoreErr("UpdateBalance", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateBalance: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateBalance: %w", domain.ErrVersionConflict)
	}
	return nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	var userID uuid.NullUUID
	err := s.Scan(
		&a.ID, &a.AccountNumber, &a.Name, &a.Balance,
		&a.AccountType, &a.Version, &userID, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		a.UserID = &userID.UUID
	}
	return &a, nil
}
