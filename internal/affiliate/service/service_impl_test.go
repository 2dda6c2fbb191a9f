package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	affdomain "github.com/smallbiznis/affina/internal/affiliate/domain"
	"github.com/smallbiznis/affina/internal/config"
	networkdomain "github.com/smallbiznis/affina/internal/network/domain"
	networkservice "github.com/smallbiznis/affina/internal/network/service"
	"github.com/smallbiznis/affina/internal/seed"
	tierdomain "github.com/smallbiznis/affina/internal/tier/domain"
	tierservice "github.com/smallbiznis/affina/internal/tier/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testDBSeq int

type testEnv struct {
	svc     affdomain.Service
	network networkdomain.Service
	db      *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testDBSeq++
	dsn := fmt.Sprintf("file:affiliate_test_%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&affdomain.Affiliate{},
		&affdomain.CustomerLink{},
		&networkdomain.Node{},
		&tierdomain.Tier{},
	))
	require.NoError(t, seed.EnsureDefaultTiers(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	networkSvc := networkservice.NewService(networkservice.ServiceParam{DB: db, Log: log})
	tierSvc := tierservice.NewService(tierservice.ServiceParam{DB: db, Log: log, GenID: node})

	cfg := config.Config{
		Commission: config.CommissionConfig{
			MLMEnabled:          true,
			MaxCascadeDepth:     3,
			DefaultRate:         10,
			LifetimeAttribution: true,
		},
	}
	svc := NewService(ServiceParam{
		Cfg:     cfg,
		DB:      db,
		Log:     log,
		GenID:   node,
		Network: networkSvc,
		Tiers:   tierSvc,
	})
	return &testEnv{svc: svc, network: networkSvc, db: db}
}

func activeAffiliate(t *testing.T, env *testEnv, userID, referrerCode string) *affdomain.Affiliate {
	t.Helper()
	status := affdomain.StatusActive
	affiliate, err := env.svc.Create(context.Background(), affdomain.CreateAffiliateRequest{
		UserID:       userID,
		ReferrerCode: referrerCode,
		Status:       &status,
	})
	require.NoError(t, err)
	return affiliate
}

func TestCreateGeneratesCodeAndTreeNode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	affiliate := activeAffiliate(t, env, "user-1", "")
	assert.Len(t, affiliate.Code, 8)
	assert.Equal(t, affdomain.StatusActive, affiliate.Status)
	assert.Equal(t, 1, affiliate.TierLevel)
	assert.Nil(t, affiliate.ReferrerID)

	node, err := env.network.Get(ctx, affiliate.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, node.Depth)

	byCode, err := env.svc.GetByCode(ctx, affiliate.Code)
	require.NoError(t, err)
	assert.Equal(t, affiliate.ID, byCode.ID)
}

func TestCreateWithReferrer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	referrer := activeAffiliate(t, env, "user-1", "")
	referred := activeAffiliate(t, env, "user-2", referrer.Code)

	require.NotNil(t, referred.ReferrerID)
	assert.Equal(t, referrer.ID, *referred.ReferrerID)

	updated, err := env.svc.Get(ctx, referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.TotalReferrals)

	node, err := env.network.Get(ctx, referred.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, node.Depth)
	require.NotNil(t, node.ParentID)
	assert.Equal(t, referrer.ID, *node.ParentID)
}

func TestCreateUnknownReferrerCode(t *testing.T) {
	env := newTestEnv(t)

	affiliate := activeAffiliate(t, env, "user-1", "NOSUCHCODE")
	assert.Nil(t, affiliate.ReferrerID)

	node, err := env.network.Get(context.Background(), affiliate.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, node.Depth)
}

func TestCreateDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := activeAffiliate(t, env, "user-1", "")

	_, err := env.svc.Create(ctx, affdomain.CreateAffiliateRequest{UserID: "user-1"})
	assert.ErrorIs(t, err, affdomain.ErrUserExists)

	_, err = env.svc.Create(ctx, affdomain.CreateAffiliateRequest{UserID: "user-2", Code: first.Code})
	assert.ErrorIs(t, err, affdomain.ErrCodeExists)

	_, err = env.svc.Create(ctx, affdomain.CreateAffiliateRequest{UserID: "user-3", Code: "x"})
	assert.ErrorIs(t, err, affdomain.ErrInvalidCode)
}

func TestUpdateStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	affiliate := activeAffiliate(t, env, "user-1", "")

	updated, err := env.svc.UpdateStatus(ctx, affiliate.ID, affdomain.StatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, affdomain.StatusSuspended, updated.Status)
	assert.False(t, updated.Status.Earning())

	_, err = env.svc.UpdateStatus(ctx, affiliate.ID, affdomain.Status("bogus"))
	assert.ErrorIs(t, err, affdomain.ErrInvalidStatus)
}

func TestEarningsAndTierRecompute(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	affiliate := activeAffiliate(t, env, "user-1", "")
	// 10 referrals qualify the referral half of Silver.
	for i := 0; i < 10; i++ {
		activeAffiliate(t, env, fmt.Sprintf("ref-%d", i), affiliate.Code)
	}

	require.NoError(t, env.svc.RecordEarnings(ctx, affiliate.ID, 60_000))

	updated, upgraded, err := env.svc.RecomputeTier(ctx, affiliate.ID)
	require.NoError(t, err)
	assert.True(t, upgraded)
	assert.Equal(t, 2, updated.TierLevel)

	// Tier never moves down, even when the numbers regress.
	require.NoError(t, env.svc.ReverseEarnings(ctx, affiliate.ID, 60_000))
	updated, upgraded, err = env.svc.RecomputeTier(ctx, affiliate.ID)
	require.NoError(t, err)
	assert.False(t, upgraded)
	assert.Equal(t, 2, updated.TierLevel)
}

func TestReverseEarningsClampsBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	affiliate := activeAffiliate(t, env, "user-1", "")
	require.NoError(t, env.svc.RecordEarnings(ctx, affiliate.ID, 1000))

	// Simulate a payout having drained the withdrawable balance.
	require.NoError(t, env.db.Model(&affdomain.Affiliate{}).
		Where("id = ?", affiliate.ID).
		UpdateColumn("current_balance_cents", 300).Error)

	require.NoError(t, env.svc.ReverseEarnings(ctx, affiliate.ID, 1000))

	updated, err := env.svc.Get(ctx, affiliate.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated.CurrentBalanceCents)
	assert.Equal(t, int64(0), updated.LifetimeEarningsCents)
}

func TestLinkCustomerFirstTouchWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := activeAffiliate(t, env, "user-1", "")
	second := activeAffiliate(t, env, "user-2", "")

	link, err := env.svc.LinkCustomer(ctx, affdomain.LinkCustomerRequest{
		CustomerID:  "cust-1",
		AffiliateID: first.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, link.AffiliateID)

	again, err := env.svc.LinkCustomer(ctx, affdomain.LinkCustomerRequest{
		CustomerID:  "cust-1",
		AffiliateID: second.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.AffiliateID)
}

func TestResolveForOrderPriority(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	direct := activeAffiliate(t, env, "user-1", "")
	coded := activeAffiliate(t, env, "user-2", "")
	lifetime := activeAffiliate(t, env, "user-3", "")

	_, err := env.svc.LinkCustomer(ctx, affdomain.LinkCustomerRequest{
		CustomerID:  "cust-1",
		AffiliateID: lifetime.ID,
	})
	require.NoError(t, err)

	// Explicit ID beats the code and the lifetime link.
	resolved, err := env.svc.ResolveForOrder(ctx, affdomain.OrderAttribution{
		AffiliateID: &direct.ID,
		Code:        coded.Code,
		CustomerID:  "cust-1",
	})
	require.NoError(t, err)
	assert.Equal(t, direct.ID, resolved.ID)

	// Code beats the lifetime link.
	resolved, err = env.svc.ResolveForOrder(ctx, affdomain.OrderAttribution{
		Code:       coded.Code,
		CustomerID: "cust-1",
	})
	require.NoError(t, err)
	assert.Equal(t, coded.ID, resolved.ID)

	// Lifetime link is the fallback.
	resolved, err = env.svc.ResolveForOrder(ctx, affdomain.OrderAttribution{
		CustomerID: "cust-1",
	})
	require.NoError(t, err)
	assert.Equal(t, lifetime.ID, resolved.ID)

	// Nothing matches.
	resolved, err = env.svc.ResolveForOrder(ctx, affdomain.OrderAttribution{
		CustomerID: "cust-unknown",
	})
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestLeaderboardOrdersByEarnings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	low := activeAffiliate(t, env, "user-1", "")
	high := activeAffiliate(t, env, "user-2", "")
	require.NoError(t, env.svc.RecordEarnings(ctx, low.ID, 100))
	require.NoError(t, env.svc.RecordEarnings(ctx, high.ID, 900))

	board, err := env.svc.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, high.ID, board[0].ID)
	assert.Equal(t, low.ID, board[1].ID)
}
