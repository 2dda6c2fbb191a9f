package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	creditdomain "github.com/smallbiznis/affina/internal/credit/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testDBSeq int

func newTestService(t *testing.T) creditdomain.Service {
	t.Helper()

	testDBSeq++
	dsn := fmt.Sprintf("file:credit_test_%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection serializes writers the way the row lock does on a
	// real database.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&creditdomain.Balance{},
		&creditdomain.JournalEntry{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})
}

func createBalance(t *testing.T, svc creditdomain.Service, total int64) *creditdomain.Balance {
	t.Helper()
	balance, err := svc.CreateBalance(context.Background(), creditdomain.CreateBalanceRequest{
		OwnerType: creditdomain.OwnerTypeLicense,
		OwnerID:   "license-1",
		Total:     total,
	})
	require.NoError(t, err)
	return balance
}

func TestDebitScenario(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	balance := createBalance(t, svc, 100)

	result, err := svc.Debit(ctx, creditdomain.DebitRequest{
		BalanceID: balance.ID.String(),
		Amount:    30,
		Action:    "usage",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(70), result.Remaining)

	_, err = svc.Debit(ctx, creditdomain.DebitRequest{
		BalanceID: balance.ID.String(),
		Amount:    80,
		Action:    "usage",
	})
	assert.ErrorIs(t, err, creditdomain.ErrInsufficientBalance)

	current, err := svc.Get(ctx, balance.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(70), current.Remaining())

	result, err = svc.Debit(ctx, creditdomain.DebitRequest{
		BalanceID: balance.ID.String(),
		Amount:    70,
		Action:    "usage",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Remaining)

	entries, err := svc.Journal(ctx, balance.ID.String())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(30), entries[0].Amount)
	assert.Equal(t, int64(70), entries[0].BalanceAfter)
	assert.Equal(t, int64(70), entries[1].Amount)
	assert.Equal(t, int64(0), entries[1].BalanceAfter)
}

func TestDebitValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	balance := createBalance(t, svc, 10)

	_, err := svc.Debit(ctx, creditdomain.DebitRequest{BalanceID: balance.ID.String(), Amount: 0})
	assert.ErrorIs(t, err, creditdomain.ErrInvalidAmount)

	_, err = svc.Debit(ctx, creditdomain.DebitRequest{BalanceID: balance.ID.String(), Amount: -5})
	assert.ErrorIs(t, err, creditdomain.ErrInvalidAmount)

	_, err = svc.Debit(ctx, creditdomain.DebitRequest{BalanceID: "not-a-number", Amount: 5})
	assert.ErrorIs(t, err, creditdomain.ErrInvalidBalanceID)

	missing := snowflake.ID(12345)
	_, err = svc.Debit(ctx, creditdomain.DebitRequest{BalanceID: missing.String(), Amount: 5})
	assert.ErrorIs(t, err, creditdomain.ErrBalanceNotFound)
}

func TestConcurrentDebits(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	balance := createBalance(t, svc, 100)

	const (
		workers = 7
		amount  = 30
	)

	var wg sync.WaitGroup
	succeeded := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Debit(ctx, creditdomain.DebitRequest{
				BalanceID: balance.ID.String(),
				Amount:    amount,
				Action:    "usage",
			})
			if err == nil {
				succeeded <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(succeeded)

	var wins int
	for range succeeded {
		wins++
	}
	// floor(100/30) debits fit, no more.
	assert.Equal(t, 3, wins)

	current, err := svc.Get(ctx, balance.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(10), current.Remaining())
	assert.GreaterOrEqual(t, current.Remaining(), int64(0))

	entries, err := svc.Journal(ctx, balance.ID.String())
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestDebitReplay(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	balance := createBalance(t, svc, 100)

	first, err := svc.Debit(ctx, creditdomain.DebitRequest{
		BalanceID: balance.ID.String(),
		Amount:    40,
		Action:    "usage",
		RequestID: "req-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(60), first.Remaining)
	assert.False(t, first.Replayed)

	replay, err := svc.Debit(ctx, creditdomain.DebitRequest{
		BalanceID: balance.ID.String(),
		Amount:    40,
		Action:    "usage",
		RequestID: "req-1",
	})
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, int64(60), replay.Remaining)

	entries, err := svc.Journal(ctx, balance.ID.String())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDebitReplayAfterGrant(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	balance := createBalance(t, svc, 100)

	first, err := svc.Debit(ctx, creditdomain.DebitRequest{
		BalanceID: balance.ID.String(),
		Amount:    30,
		Action:    "usage",
		RequestID: "req-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(70), first.Remaining)

	_, err = svc.Grant(ctx, creditdomain.GrantRequest{
		BalanceID: balance.ID.String(),
		Amount:    50,
		Action:    "topup",
	})
	require.NoError(t, err)

	// The replay keeps the recorded remaining but must not mix it with
	// the post-grant total when reporting consumed.
	replay, err := svc.Debit(ctx, creditdomain.DebitRequest{
		BalanceID: balance.ID.String(),
		Amount:    30,
		Action:    "usage",
		RequestID: "req-1",
	})
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, int64(70), replay.Remaining)
	assert.Equal(t, int64(30), replay.Consumed)
	assert.Equal(t, int64(150), replay.Total)
}

func TestDebitRequestTokenScopedPerBalance(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	balance := createBalance(t, svc, 100)

	other, err := svc.CreateBalance(ctx, creditdomain.CreateBalanceRequest{
		OwnerType: creditdomain.OwnerTypeLicense,
		OwnerID:   "license-2",
		Total:     100,
	})
	require.NoError(t, err)

	_, err = svc.Debit(ctx, creditdomain.DebitRequest{
		BalanceID: balance.ID.String(),
		Amount:    30,
		Action:    "usage",
		RequestID: "req-1",
	})
	require.NoError(t, err)

	// The same token against another balance is a fresh debit, not a
	// replay and not a conflict.
	result, err := svc.Debit(ctx, creditdomain.DebitRequest{
		BalanceID: other.ID.String(),
		Amount:    40,
		Action:    "usage",
		RequestID: "req-1",
	})
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Equal(t, int64(60), result.Remaining)

	entries, err := svc.Journal(ctx, other.ID.String())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(40), entries[0].Amount)

	// Replays still work on each balance independently.
	replay, err := svc.Debit(ctx, creditdomain.DebitRequest{
		BalanceID: other.ID.String(),
		Amount:    40,
		Action:    "usage",
		RequestID: "req-1",
	})
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, int64(60), replay.Remaining)
}

func TestGrantAndSufficiency(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	balance := createBalance(t, svc, 50)

	result, err := svc.Grant(ctx, creditdomain.GrantRequest{
		BalanceID: balance.ID.String(),
		Amount:    25,
		Action:    "topup",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(75), result.Remaining)
	assert.Equal(t, int64(75), result.Total)

	ok, err := svc.HasSufficient(ctx, balance.ID.String(), 75)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasSufficient(ctx, balance.ID.String(), 76)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJournalConsistency(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	balance := createBalance(t, svc, 200)

	amounts := []int64{10, 20, 30, 40}
	for _, amount := range amounts {
		_, err := svc.Debit(ctx, creditdomain.DebitRequest{
			BalanceID: balance.ID.String(),
			Amount:    amount,
			Action:    "usage",
		})
		require.NoError(t, err)
	}
	_, err := svc.Grant(ctx, creditdomain.GrantRequest{
		BalanceID: balance.ID.String(),
		Amount:    50,
		Action:    "topup",
	})
	require.NoError(t, err)

	entries, err := svc.Journal(ctx, balance.ID.String())
	require.NoError(t, err)
	require.Len(t, entries, 5)

	current, err := svc.Get(ctx, balance.ID.String())
	require.NoError(t, err)

	// Replaying the signed journal must land exactly on the stored
	// remaining balance.
	running := int64(200)
	for _, entry := range entries {
		switch entry.Direction {
		case creditdomain.JournalDirectionDebit:
			running -= entry.Amount
		case creditdomain.JournalDirectionCredit:
			running += entry.Amount
		}
		assert.Equal(t, running, entry.BalanceAfter)
	}
	assert.Equal(t, current.Remaining(), running)
}

func TestCreateBalanceDuplicateOwner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateBalance(ctx, creditdomain.CreateBalanceRequest{
		OwnerType: creditdomain.OwnerTypeAffiliate,
		OwnerID:   "aff-1",
		Total:     10,
	})
	require.NoError(t, err)

	_, err = svc.CreateBalance(ctx, creditdomain.CreateBalanceRequest{
		OwnerType: creditdomain.OwnerTypeAffiliate,
		OwnerID:   "aff-1",
		Total:     10,
	})
	assert.ErrorIs(t, err, creditdomain.ErrBalanceExists)
}
