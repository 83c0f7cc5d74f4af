package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/apostle/apostle-backend/internal/domain"
)

const transactionColumns = `seq, id, transaction_reference, sender_account_id, sender_account_number,
	receiver_account_id, receiver_account_number, amount, type, status, note, created_at`

// TransactionRepository is an append-only log: records are inserted once
// and never updated or deleted.
type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create appends a record, filling in its insertion sequence number. A
// collision on the reference index maps to domain.ErrDuplicateReference
// so the caller can regenerate and retry.
func (r *TransactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	return r.create(ctx, r.db, t)
}

// CreateTx appends a record inside a caller-owned transaction.
func (r *TransactionRepository) CreateTx(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error {
	return r.create(ctx, tx, t)
}

func (r *TransactionRepository) create(ctx context.Context, q querier, t *domain.Transaction) error {
	err := q.QueryRowContext(ctx,
		`INSERT INTO transactions (id, transaction_reference, sender_account_id, sender_account_number,
			receiver_account_id, receiver_account_number, amount, type, status, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING seq`,
		t.ID, t.Reference, t.SenderAccountID, t.SenderAccountNumber,
		t.ReceiverAccountID, t.ReceiverAccountNumber, t.Amount, t.Type,
		t.Status, t.Note, t.CreatedAt,
	).Scan(&t.Seq)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateReference)
		}
		return wrapStoreErr("Create", err)
	}
	return nil
}

func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_reference = $1`, reference,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByReference: %w", domain.ErrNotFound)
		}
		return nil, wrapStoreErr("GetByReference", err)
	}
	return t, nil
}

// ListForAccount returns the account's view of its history: DEBIT records
// where it is the sender and CREDIT records where it is the receiver,
// restricted to [start, end], newest first. seq breaks timestamp ties so
// pagination is deterministic.
func (r *TransactionRepository) ListForAccount(ctx context.Context, accountID uuid.UUID, start, end time.Time, limit, offset int) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE ((sender_account_id = $1 AND type = $2) OR (receiver_account_id = $1 AND type = $3))
			AND created_at >= $4 AND created_at <= $5
		ORDER BY created_at DESC, seq DESC
		LIMIT $6 OFFSET $7`,
		accountID, domain.TransactionTypeDebit, domain.TransactionTypeCredit,
		start, end, limit, offset,
	)
	if err != nil {
		return nil, wrapStoreErr("ListForAccount", err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListForAccount: scan: %w", err)
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("ListForAccount: rows", err)
	}
	return transactions, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	err := s.Scan(
		&t.Seq, &t.ID, &t.Reference, &t.SenderAccountID, &t.SenderAccountNumber,
		&t.ReceiverAccountID, &t.ReceiverAccountNumber, &t.Amount, &t.Type,
		&t.Status, &t.Note, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
