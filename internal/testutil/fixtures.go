package testutil

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/apostle/apostle-backend/internal/domain"
)

var accountNumberSeq uint64

func nextAccountNumber() string {
	accountNumberSeq++
	return fmt.Sprintf("9%09d", accountNumberSeq)
}

func SeedTestUser(t *testing.T, db *sql.DB, email, name string) *domain.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Status:       domain.UserStatusActive,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = db.Exec(
		`INSERT INTO users (id, email, name, password_hash, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Status, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed test user %s: %v", email, err)
	}
	return u
}

func SeedTestAccount(t *testing.T, db *sql.DB, userID uuid.UUID, name string, balance decimal.Decimal) *domain.Account {
	t.Helper()

	a := &domain.Account{
		ID:            uuid.New(),
		AccountNumber: nextAccountNumber(),
		Name:          name,
		Balance:       balance,
		AccountType:   domain.AccountTypeSavings,
		Version:       0,
		UserID:        &userID,
		CreatedAt:     time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO accounts (id, account_number, name, balance, account_type, version, user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.AccountNumber, a.Name, a.Balance, a.AccountType, a.Version, a.UserID, a.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed test account %s: %v", a.AccountNumber, err)
	}
	return a
}

func GetAccountBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal
	err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get account balance %s: %v", accountID, err)
	}
	return balance
}

func GetAccountVersion(t *testing.T, db *sql.DB, accountID uuid.UUID) int64 {
	t.Helper()

	var version int64
	err := db.QueryRow(`SELECT version FROM accounts WHERE id = $1`, accountID).Scan(&version)
	if err != nil {
		t.Fatalf("get account version %s: %v", accountID, err)
	}
	return version
}

func CountTransactions(t *testing.T, db *sql.DB, accountID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM transactions WHERE sender_account_id = $1 OR receiver_account_id = $1`,
		accountID,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count transactions for account %s: %v", accountID, err)
	}
	return count
}
