package transaction_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apostle/apostle-backend/internal/domain"
	"github.com/apostle/apostle-backend/internal/ledger"
	"github.com/apostle/apostle-backend/internal/repository"
	"github.com/apostle/apostle-backend/internal/service/transaction"
	"github.com/apostle/apostle-backend/internal/testutil"
)

func setupTransactionService(t *testing.T, db *sql.DB, attempts int) *transaction.Service {
	t.Helper()
	retry := ledger.RetryPolicy{MaxAttempts: attempts, InitialInterval: 5 * time.Millisecond}
	ledgerSvc := ledger.NewService(
		repository.NewAccountRepository(db),
		repository.NewUserRepository(db),
		retry,
	)
	return transaction.NewService(ledgerSvc, repository.NewTransactionRepository(db), db, retry)
}

func TestDeposit_HappyPath(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransactionService(t, db, 3)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "alice@test.com", "Alice")
	acct := testutil.SeedTestAccount(t, db, user.ID, "Alice", decimal.Zero)

	resp, err := svc.Deposit(ctx, transaction.DepositRequest{
		ReceiverAccountNumber: acct.AccountNumber,
		Amount:                decimal.NewFromInt(1000),
		Note:                  "initial funding",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionTypeCredit, resp.Type)
	assert.Equal(t, domain.TransactionStatusSuccess, resp.Status)
	assert.Equal(t, "initial funding", resp.Note)
	assert.Equal(t, "Alice", resp.ReceiverName)
	assert.NotEmpty(t, resp.Reference)

	stored := testutil.GetAccountBalance(t, db, acct.ID)
	assert.True(t, stored.Equal(decimal.NewFromInt(1000)), "got %s", stored)

	var senderNumber, txType string
	err = db.QueryRow(
		`SELECT sender_account_number, type FROM transactions WHERE receiver_account_id = $1`,
		acct.ID,
	).Scan(&senderNumber, &txType)
	require.NoError(t, err)
	assert.Equal(t, domain.SystemAccountNumber, senderNumber)
	assert.Equal(t, "CREDIT", txType)
}

func TestDeposit_InvalidAmount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransactionService(t, db, 3)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "alice@test.com", "Alice")
	acct := testutil.SeedTestAccount(t, db, user.ID, "Alice", decimal.Zero)

	_, err := svc.Deposit(ctx, transaction.DepositRequest{
		ReceiverAccountNumber: acct.AccountNumber,
		Amount:                decimal.Zero,
	})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Deposit(ctx, transaction.DepositRequest{
		ReceiverAccountNumber: acct.AccountNumber,
		Amount:                decimal.NewFromInt(-100),
	})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	assert.Equal(t, 0, testutil.CountTransactions(t, db, acct.ID))
}

func TestDeposit_AccountNotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransactionService(t, db, 3)

	_, err := svc.Deposit(context.Background(), transaction.DepositRequest{
		ReceiverAccountNumber: "0000000000",
		Amount:                decimal.NewFromInt(10),
	})
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestTransfer_HappyPath(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransactionService(t, db, 3)
	ctx := context.Background()

	alice := testutil.SeedTestUser(t, db, "alice@test.com", "Alice")
	bob := testutil.SeedTestUser(t, db, "bob@test.com", "Bob")
	src := testutil.SeedTestAccount(t, db, alice.ID, "Alice", decimal.NewFromInt(500))
	dst := testutil.SeedTestAccount(t, db, bob.ID, "Bob", decimal.NewFromInt(100))

	resp, err := svc.Transfer(ctx, transaction.TransferRequest{
		SenderAccountNumber:   src.AccountNumber,
		ReceiverAccountNumber: dst.AccountNumber,
		Amount:                decimal.NewFromInt(200),
		Note:                  "rent",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionTypeDebit, resp.Type)
	assert.Equal(t, domain.TransactionStatusSuccess, resp.Status)
	assert.Equal(t, "Transfer to Bob: rent", resp.Note)
	assert.Equal(t, "Bob", resp.ReceiverName)

	srcBalance := testutil.GetAccountBalance(t, db, src.ID)
	dstBalance := testutil.GetAccountBalance(t, db, dst.ID)
	assert.True(t, srcBalance.Equal(decimal.NewFromInt(300)), "sender: got %s", srcBalance)
	assert.True(t, dstBalance.Equal(decimal.NewFromInt(400)), "receiver: got %s", dstBalance)

	// One DEBIT and one CREDIT record, both pointing the same way, with
	// distinct references.
	rows, err := db.Query(
		`SELECT transaction_reference, type, note FROM transactions
		 WHERE sender_account_id = $1 ORDER BY type`,
		src.ID,
	)
	require.NoError(t, err)
	defer rows.Close()

	type rec struct{ ref, typ, note string }
	var recs []rec
	for rows.Next() {
		var r rec
		require.NoError(t, rows.Scan(&r.ref, &r.typ, &r.note))
		recs = append(recs, r)
	}
	require.NoError(t, rows.Err())
	require.Len(t, recs, 2)

	assert.Equal(t, "CREDIT", recs[0].typ)
	assert.Equal(t, "Received from Alice: rent", recs[0].note)
	assert.Equal(t, "DEBIT", recs[1].typ)
	assert.Equal(t, "Transfer to Bob: rent", recs[1].note)
	assert.NotEqual(t, recs[0].ref, recs[1].ref)
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransactionService(t, db, 3)
	ctx := context.Background()

	alice := testutil.SeedTestUser(t, db, "alice@test.com", "Alice")
	bob := testutil.SeedTestUser(t, db, "bob@test.com", "Bob")
	src := testutil.SeedTestAccount(t, db, alice.ID, "Alice", decimal.NewFromInt(100))
	dst := testutil.SeedTestAccount(t, db, bob.ID, "Bob", decimal.NewFromInt(50))

	_, err := svc.Transfer(ctx, transaction.TransferRequest{
		SenderAccountNumber:   src.AccountNumber,
		ReceiverAccountNumber: dst.AccountNumber,
		Amount:                decimal.NewFromInt(101),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	assert.True(t, testutil.GetAccountBalance(t, db, src.ID).Equal(decimal.NewFromInt(100)))
	assert.True(t, testutil.GetAccountBalance(t, db, dst.ID).Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 0, testutil.CountTransactions(t, db, src.ID))
	assert.Equal(t, 0, testutil.CountTransactions(t, db, dst.ID))
}

func TestTransfer_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransactionService(t, db, 3)
	ctx := context.Background()

	alice := testutil.SeedTestUser(t, db, "alice@test.com", "Alice")
	src := testutil.SeedTestAccount(t, db, alice.ID, "Alice", decimal.NewFromInt(100))

	_, err := svc.Transfer(ctx, transaction.TransferRequest{
		SenderAccountNumber:   src.AccountNumber,
		ReceiverAccountNumber: src.AccountNumber,
		Amount:                decimal.NewFromInt(10),
	})
	require.ErrorIs(t, err, domain.ErrSelfTransfer)

	_, err = svc.Transfer(ctx, transaction.TransferRequest{
		SenderAccountNumber:   src.AccountNumber,
		ReceiverAccountNumber: "0000000000",
		Amount:                decimal.NewFromInt(10),
	})
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	assert.True(t, testutil.GetAccountBalance(t, db, src.ID).Equal(decimal.NewFromInt(100)))
}

func TestConcurrentTransfers_ConserveMoney(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransactionService(t, db, 20)
	ctx := context.Background()

	alice := testutil.SeedTestUser(t, db, "alice@test.com", "Alice")
	bob := testutil.SeedTestUser(t, db, "bob@test.com", "Bob")
	src := testutil.SeedTestAccount(t, db, alice.ID, "Alice", decimal.NewFromInt(100))
	dst := testutil.SeedTestAccount(t, db, bob.ID, "Bob", decimal.Zero)

	const workers = 8
	amount := decimal.NewFromInt(10)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Transfer(ctx, transaction.TransferRequest{
				SenderAccountNumber:   src.AccountNumber,
				ReceiverAccountNumber: dst.AccountNumber,
				Amount:                amount,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	srcBalance := testutil.GetAccountBalance(t, db, src.ID)
	dstBalance := testutil.GetAccountBalance(t, db, dst.ID)
	assert.True(t, srcBalance.Equal(decimal.NewFromInt(20)), "sender: got %s", srcBalance)
	assert.True(t, dstBalance.Equal(decimal.NewFromInt(80)), "receiver: got %s", dstBalance)
	assert.True(t, srcBalance.Add(dstBalance).Equal(decimal.NewFromInt(100)))

	// Each transfer writes a DEBIT and a CREDIT.
	assert.Equal(t, 2*workers, testutil.CountTransactions(t, db, src.ID))
}

// Deposit 1000, transfer 400, then fail a transfer of 5000: the failed
// attempt must leave the post-transfer balances untouched.
func TestDepositTransferScenario(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransactionService(t, db, 3)
	ctx := context.Background()

	alice := testutil.SeedTestUser(t, db, "alice@test.com", "Alice")
	bob := testutil.SeedTestUser(t, db, "bob@test.com", "Bob")
	x := testutil.SeedTestAccount(t, db, alice.ID, "Alice", decimal.Zero)
	y := testutil.SeedTestAccount(t, db, bob.ID, "Bob", decimal.Zero)

	_, err := svc.Deposit(ctx, transaction.DepositRequest{
		ReceiverAccountNumber: x.AccountNumber,
		Amount:                decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, transaction.TransferRequest{
		SenderAccountNumber:   x.AccountNumber,
		ReceiverAccountNumber: y.AccountNumber,
		Amount:                decimal.NewFromInt(400),
	})
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, transaction.TransferRequest{
		SenderAccountNumber:   x.AccountNumber,
		ReceiverAccountNumber: y.AccountNumber,
		Amount:                decimal.NewFromInt(5000),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	assert.True(t, testutil.GetAccountBalance(t, db, x.ID).Equal(decimal.NewFromInt(600)))
	assert.True(t, testutil.GetAccountBalance(t, db, y.ID).Equal(decimal.NewFromInt(400)))
}

func TestTransactionByReference(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransactionService(t, db, 3)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "alice@test.com", "Alice")
	acct := testutil.SeedTestAccount(t, db, user.ID, "Alice", decimal.Zero)

	deposited, err := svc.Deposit(ctx, transaction.DepositRequest{
		ReceiverAccountNumber: acct.AccountNumber,
		Amount:                decimal.NewFromInt(25),
		Note:                  "lookup me",
	})
	require.NoError(t, err)

	found, err := svc.TransactionByReference(ctx, deposited.Reference)
	require.NoError(t, err)
	assert.Equal(t, deposited.Reference, found.Reference)
	assert.Equal(t, "lookup me", found.Note)
	assert.True(t, found.Amount.Equal(decimal.NewFromInt(25)))

	_, err = svc.TransactionByReference(ctx, "20000101000000000000")
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func seedTransactionRecord(t *testing.T, db *sql.DB, sender, receiver *domain.Account, amount int64, txType domain.TransactionType, createdAt time.Time) string {
	t.Helper()

	ref := createdAt.UTC().Format("20060102") + uuid.NewString()[:12]
	_, err := db.Exec(
		`INSERT INTO transactions
		   (id, transaction_reference, sender_account_id, sender_account_number,
		    receiver_account_id, receiver_account_number, amount, type, status, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'SUCCESS', '', $9)`,
		uuid.New(), ref, sender.ID, sender.AccountNumber,
		receiver.ID, receiver.AccountNumber, amount, txType, createdAt,
	)
	require.NoError(t, err)
	return ref
}

func TestTransactionsForAccount_WindowAndDirection(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransactionService(t, db, 3)
	ctx := context.Background()

	alice := testutil.SeedTestUser(t, db, "alice@test.com", "Alice")
	bob := testutil.SeedTestUser(t, db, "bob@test.com", "Bob")
	a := testutil.SeedTestAccount(t, db, alice.ID, "Alice", decimal.Zero)
	b := testutil.SeedTestAccount(t, db, bob.ID, "Bob", decimal.Zero)

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	inWindowOut := seedTransactionRecord(t, db, a, b, 10, domain.TransactionTypeDebit, base)
	inWindowIn := seedTransactionRecord(t, db, b, a, 20, domain.TransactionTypeCredit, base.Add(time.Hour))
	// Mirror records of the other leg must not show up for A.
	seedTransactionRecord(t, db, a, b, 10, domain.TransactionTypeCredit, base)
	seedTransactionRecord(t, db, b, a, 20, domain.TransactionTypeDebit, base.Add(time.Hour))
	// Outside the window.
	seedTransactionRecord(t, db, a, b, 30, domain.TransactionTypeDebit, base.Add(-48*time.Hour))
	seedTransactionRecord(t, db, b, a, 40, domain.TransactionTypeCredit, base.Add(48*time.Hour))

	start := base.Add(-time.Hour)
	end := base.Add(2 * time.Hour)

	items, err := svc.TransactionsForAccount(ctx, a.ID, start, end, 0, 50)
	require.NoError(t, err)
	require.Len(t, items, 2)

	// Newest first.
	assert.Equal(t, inWindowIn, items[0].Reference)
	assert.Equal(t, domain.TransactionTypeCredit, items[0].Type)
	assert.Equal(t, "Alice", items[0].ReceiverName)
	assert.Equal(t, inWindowOut, items[1].Reference)
	assert.Equal(t, domain.TransactionTypeDebit, items[1].Type)
	assert.Equal(t, "Bob", items[1].ReceiverName)
}

func TestTransactionsForAccount_TiebreakAndPagination(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransactionService(t, db, 3)
	ctx := context.Background()

	alice := testutil.SeedTestUser(t, db, "alice@test.com", "Alice")
	bob := testutil.SeedTestUser(t, db, "bob@test.com", "Bob")
	a := testutil.SeedTestAccount(t, db, alice.ID, "Alice", decimal.Zero)
	b := testutil.SeedTestAccount(t, db, bob.ID, "Bob", decimal.Zero)

	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	// Five records sharing one timestamp: insertion order breaks the tie,
	// latest insert first.
	var refs []string
	for range 5 {
		refs = append(refs, seedTransactionRecord(t, db, a, b, 10, domain.TransactionTypeDebit, at))
	}

	start := at.Add(-time.Minute)
	end := at.Add(time.Minute)

	page0, err := svc.TransactionsForAccount(ctx, a.ID, start, end, 0, 2)
	require.NoError(t, err)
	require.Len(t, page0, 2)
	assert.Equal(t, refs[4], page0[0].Reference)
	assert.Equal(t, refs[3], page0[1].Reference)

	page1, err := svc.TransactionsForAccount(ctx, a.ID, start, end, 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, refs[2], page1[0].Reference)
	assert.Equal(t, refs[1], page1[1].Reference)

	page2, err := svc.TransactionsForAccount(ctx, a.ID, start, end, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, refs[0], page2[0].Reference)

	empty, err := svc.TransactionsForAccount(ctx, a.ID, start, end, 3, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
