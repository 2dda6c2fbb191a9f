package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	affdomain "github.com/smallbiznis/affina/internal/affiliate/domain"
	comdomain "github.com/smallbiznis/affina/internal/commission/domain"
	"github.com/smallbiznis/affina/internal/config"
	creditdomain "github.com/smallbiznis/affina/internal/credit/domain"
	networkdomain "github.com/smallbiznis/affina/internal/network/domain"
	tierdomain "github.com/smallbiznis/affina/internal/tier/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommissionService struct {
	comdomain.Service

	saleCalls   int
	refundCalls int
	lastSale    comdomain.SaleRequest
	saleResult  *comdomain.SaleResult
	saleErr     error
}

func (f *fakeCommissionService) ProcessSale(ctx context.Context, req comdomain.SaleRequest) (*comdomain.SaleResult, error) {
	f.saleCalls++
	f.lastSale = req
	if f.saleErr != nil {
		return nil, f.saleErr
	}
	return f.saleResult, nil
}

func (f *fakeCommissionService) ProcessRefund(ctx context.Context, req comdomain.RefundRequest) (*comdomain.RefundResult, error) {
	f.refundCalls++
	return &comdomain.RefundResult{OrderID: req.OrderID}, nil
}

type fakeCreditService struct {
	creditdomain.Service

	debitErr error
}

func (f *fakeCreditService) Debit(ctx context.Context, req creditdomain.DebitRequest) (*creditdomain.DebitResult, error) {
	if f.debitErr != nil {
		return nil, f.debitErr
	}
	return &creditdomain.DebitResult{Remaining: 70, Consumed: 30, Total: 100}, nil
}

type fakeAffiliateService struct{ affdomain.Service }
type fakeNetworkService struct{ networkdomain.Service }
type fakeTierService struct{ tierdomain.Service }

func newTestServer(t *testing.T, commissionSvc comdomain.Service, creditSvc creditdomain.Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	NewServer(ServerParams{
		Gin:           engine,
		Cfg:           config.Config{},
		GenID:         node,
		CreditSvc:     creditSvc,
		TierSvc:       &fakeTierService{},
		AffiliateSvc:  &fakeAffiliateService{},
		NetworkSvc:    &fakeNetworkService{},
		CommissionSvc: commissionSvc,
	})
	return engine
}

func TestOrderCompletedWebhook(t *testing.T) {
	affiliateID := snowflake.ID(42)
	fake := &fakeCommissionService{
		saleResult: &comdomain.SaleResult{
			OrderID:     "order-1",
			AffiliateID: &affiliateID,
			Commissions: []*comdomain.Commission{{
				ID:          snowflake.ID(1),
				AffiliateID: affiliateID,
				OrderID:     "order-1",
				Type:        comdomain.TypeSale,
				AmountCents: 500,
			}},
		},
	}
	engine := newTestServer(t, fake, &fakeCreditService{})

	body, _ := json.Marshal(map[string]any{
		"order_id":    "order-1",
		"total_cents": 10000,
		"code":        "ABCD2345",
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/orders/completed", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, fake.saleCalls)
	assert.Equal(t, "order-1", fake.lastSale.OrderID)
	assert.Equal(t, int64(10000), fake.lastSale.TotalCents)

	var resp comdomain.SaleResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Commissions, 1)
}

func TestOrderCompletedWebhookBadBody(t *testing.T) {
	fake := &fakeCommissionService{}
	engine := newTestServer(t, fake, &fakeCreditService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/orders/completed", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, fake.saleCalls)
}

func TestOrderRefundedWebhook(t *testing.T) {
	fake := &fakeCommissionService{}
	engine := newTestServer(t, fake, &fakeCreditService{})

	body, _ := json.Marshal(map[string]any{"order_id": "order-1"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/orders/refunded", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, fake.refundCalls)
}

func TestDebitEndpointMapsInsufficientBalance(t *testing.T) {
	engine := newTestServer(t, &fakeCommissionService{}, &fakeCreditService{
		debitErr: creditdomain.ErrInsufficientBalance,
	})

	body, _ := json.Marshal(map[string]any{"amount": 500, "action": "usage"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/balances/12345/debit", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "insufficient_balance", resp.Error.Type)
}

func TestDebitEndpointSuccess(t *testing.T) {
	engine := newTestServer(t, &fakeCommissionService{}, &fakeCreditService{})

	body, _ := json.Marshal(map[string]any{"amount": 30, "action": "usage"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/balances/12345/debit", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp creditdomain.DebitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(70), resp.Remaining)
}
