package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuongbtq/freelance-escrow/internal/api/domain"
	"github.com/cuongbtq/freelance-escrow/internal/api/dto"
	"github.com/cuongbtq/freelance-escrow/internal/api/model"
	"github.com/cuongbtq/freelance-escrow/internal/api/service"
	"github.com/cuongbtq/freelance-escrow/internal/api/storage"
	"github.com/cuongbtq/freelance-escrow/shared/logger"
	"github.com/cuongbtq/freelance-escrow/shared/payment"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEscrowService struct {
	mock.Mock
}

func (m *MockEscrowService) CreateEscrow(ctx context.Context, in service.CreateEscrowInput) (*service.CreateEscrowResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.CreateEscrowResult), args.Error(1)
}

func (m *MockEscrowService) GetEscrow(ctx context.Context, id string) (*model.Escrow, error) {
	args := m.Called(ctx, id)
	return escrowOrNil(args.Get(0)), args.Error(1)
}

func (m *MockEscrowService) GetEscrowByProjectID(ctx context.Context, projectID string) (*model.Escrow, error) {
	args := m.Called(ctx, projectID)
	return escrowOrNil(args.Get(0)), args.Error(1)
}

func (m *MockEscrowService) ListEscrows(ctx context.Context, filter storage.EscrowFilter) ([]model.Escrow, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Escrow), args.Error(1)
}

func (m *MockEscrowService) ListTransactions(ctx context.Context, escrowID string) ([]model.EscrowTransaction, error) {
	args := m.Called(ctx, escrowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.EscrowTransaction), args.Error(1)
}

func (m *MockEscrowService) ReleaseFunds(ctx context.Context, in service.ReleaseFundsInput) (*model.Escrow, error) {
	args := m.Called(ctx, in)
	return escrowOrNil(args.Get(0)), args.Error(1)
}

func (m *MockEscrowService) CancelEscrow(ctx context.Context, id string) (*model.Escrow, error) {
	args := m.Called(ctx, id)
	return escrowOrNil(args.Get(0)), args.Error(1)
}

func (m *MockEscrowService) ConfirmHold(ctx context.Context, paymentReference string) (*model.Escrow, error) {
	args := m.Called(ctx, paymentReference)
	return escrowOrNil(args.Get(0)), args.Error(1)
}

func escrowOrNil(v interface{}) *model.Escrow {
	if v == nil {
		return nil
	}
	return v.(*model.Escrow)
}

type MockWebhookParser struct {
	mock.Mock
}

func (m *MockWebhookParser) ParseWebhook(payload []byte, signature string) (*payment.WebhookEvent, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.WebhookEvent), args.Error(1)
}

const escrowID = "6f1c2a9e-3b7d-4c55-9a0e-2f8d1b4c7e10"

var createdAt = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func sampleEscrow(status, released string) *model.Escrow {
	return &model.Escrow{
		ID:               escrowID,
		ProjectID:        "project-1",
		Amount:           decimal.RequireFromString("1000"),
		ReleasedAmount:   decimal.RequireFromString(released),
		Currency:         "usd",
		Status:           status,
		PaymentReference: "pi_123",
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
}

func newTestEngine(svc *MockEscrowService, parser *MockWebhookParser) *gin.Engine {
	gin.SetMode(gin.TestMode)

	deps := &Dependencies{Logger: logger.NewNop(), Escrows: svc, Webhooks: parser}
	eh := NewEscrowHandler(deps)
	wh := NewWebhookHandler(deps)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextUserIDKey, "client-1")
		c.Next()
	})
	r.POST("/escrows", eh.CreateEscrow)
	r.GET("/escrows", eh.ListEscrows)
	r.GET("/escrows/project/:project_id", eh.GetEscrowByProjectID)
	r.GET("/escrows/:id", eh.GetEscrow)
	r.GET("/escrows/:id/transactions", eh.ListTransactions)
	r.POST("/escrows/:id/release", eh.ReleaseFunds)
	r.POST("/escrows/:id/cancel", eh.CancelEscrow)
	r.POST("/webhooks/stripe", wh.HandleStripe)
	return r
}

func doRequest(r http.Handler, method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorBody {
	t.Helper()
	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestEscrowHandler_CreateEscrow(t *testing.T) {
	svc := new(MockEscrowService)
	r := newTestEngine(svc, nil)

	svc.On("CreateEscrow", mock.Anything, mock.MatchedBy(func(in service.CreateEscrowInput) bool {
		return in.ProjectID == "project-1" &&
			in.Amount.Equal(decimal.RequireFromString("1000")) &&
			in.Currency == "eur" &&
			in.CreatedBy == "client-1" &&
			in.IdempotencyKey == "key-1"
	})).Return(&service.CreateEscrowResult{
		Escrow:       sampleEscrow(domain.EscrowStatusPending, "0"),
		ClientSecret: "pi_123_secret",
	}, nil).Once()

	w := doRequest(r, http.MethodPost, "/escrows",
		`{"project_id":"project-1","amount":"1000","currency":"eur"}`,
		map[string]string{IdempotencyKeyHeader: "key-1"})

	require.Equal(t, http.StatusCreated, w.Code)
	svc.AssertExpectations(t)

	var resp dto.CreateEscrowResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "pi_123_secret", resp.ClientSecret)
	assert.Equal(t, escrowID, resp.Escrow.ID)
	assert.Equal(t, "1000.00", resp.Escrow.Amount)
	assert.Equal(t, "0.00", resp.Escrow.ReleasedAmount)
	assert.Equal(t, "1000.00", resp.Escrow.RemainingAmount)
	assert.Equal(t, domain.EscrowStatusPending, resp.Escrow.Status)
	assert.Equal(t, "2026-05-04T10:00:00Z", resp.Escrow.CreatedAt)
}

func TestEscrowHandler_CreateEscrow_NumericAmount(t *testing.T) {
	svc := new(MockEscrowService)
	r := newTestEngine(svc, nil)

	svc.On("CreateEscrow", mock.Anything, mock.MatchedBy(func(in service.CreateEscrowInput) bool {
		return in.Amount.Equal(decimal.RequireFromString("99.95"))
	})).Return(&service.CreateEscrowResult{Escrow: sampleEscrow(domain.EscrowStatusPending, "0")}, nil).Once()

	w := doRequest(r, http.MethodPost, "/escrows", `{"project_id":"project-1","amount":99.95}`, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	svc.AssertExpectations(t)
}

func TestEscrowHandler_CreateEscrow_BadBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"malformed json", `{"project_id":`},
		{"missing project", `{"amount":"10"}`},
		{"non-numeric amount", `{"project_id":"p","amount":"ten"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockEscrowService)
			r := newTestEngine(svc, nil)

			w := doRequest(r, http.MethodPost, "/escrows", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, domain.KindInvalidInput, decodeError(t, w).Kind)
			svc.AssertNotCalled(t, "CreateEscrow", mock.Anything, mock.Anything)
		})
	}
}

func TestEscrowHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantKind      string
		wantRetryable bool
	}{
		{"not found", domain.ErrEscrowNotFound, http.StatusNotFound, domain.KindNotFound, false},
		{"not active", domain.ErrEscrowNotActive, http.StatusBadRequest, domain.KindInvalidState, false},
		{"exceeds balance", domain.ErrExceedsBalance, http.StatusBadRequest, domain.KindInvalidState, false},
		{"bad amount", domain.ErrNonPositiveAmount, http.StatusBadRequest, domain.KindInvalidInput, false},
		{"amount too large", domain.ErrAmountTooLarge, http.StatusBadRequest, domain.KindInvalidInput, false},
		{"conflict", domain.ErrEscrowExists, http.StatusConflict, domain.KindConflict, false},
		{"gateway", fmt.Errorf("%w: card declined", domain.ErrGatewayFailure), http.StatusBadGateway, domain.KindGatewayFailure, true},
		{"store", fmt.Errorf("%w: conn reset", domain.ErrStoreFailure), http.StatusInternalServerError, domain.KindStoreFailure, true},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, domain.KindInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockEscrowService)
			r := newTestEngine(svc, nil)
			svc.On("ReleaseFunds", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			w := doRequest(r, http.MethodPost, "/escrows/"+escrowID+"/release", `{"amount":"100"}`, nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.wantKind, body.Kind)
			assert.Equal(t, tt.wantRetryable, body.Retryable)
			assert.NotEmpty(t, body.Message)
			if tt.wantKind == domain.KindStoreFailure {
				assert.NotContains(t, body.Message, "conn reset")
			}
		})
	}
}

func TestEscrowHandler_ReleaseFunds(t *testing.T) {
	svc := new(MockEscrowService)
	r := newTestEngine(svc, nil)

	svc.On("ReleaseFunds", mock.Anything, mock.MatchedBy(func(in service.ReleaseFundsInput) bool {
		return in.EscrowID == escrowID && in.Amount.Equal(decimal.RequireFromString("400")) && in.IdempotencyKey == "rel-1"
	})).Return(sampleEscrow(domain.EscrowStatusActive, "400"), nil).Once()

	w := doRequest(r, http.MethodPost, "/escrows/"+escrowID+"/release", `{"amount":"400"}`,
		map[string]string{IdempotencyKeyHeader: "rel-1"})

	require.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)

	var resp dto.EscrowResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "400.00", resp.Escrow.ReleasedAmount)
	assert.Equal(t, "600.00", resp.Escrow.RemainingAmount)
	assert.Equal(t, domain.EscrowStatusActive, resp.Escrow.Status)
}

func TestEscrowHandler_InvalidEscrowID(t *testing.T) {
	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/escrows/not-a-uuid"},
		{http.MethodGet, "/escrows/not-a-uuid/transactions"},
		{http.MethodPost, "/escrows/not-a-uuid/release"},
		{http.MethodPost, "/escrows/not-a-uuid/cancel"},
	}

	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			svc := new(MockEscrowService)
			r := newTestEngine(svc, nil)

			w := doRequest(r, p.method, p.path, `{"amount":"1"}`, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, domain.KindInvalidInput, decodeError(t, w).Kind)
			assert.Empty(t, svc.Calls)
		})
	}
}

func TestEscrowHandler_CancelEscrow(t *testing.T) {
	svc := new(MockEscrowService)
	r := newTestEngine(svc, nil)
	svc.On("CancelEscrow", mock.Anything, escrowID).Return(sampleEscrow(domain.EscrowStatusCancelled, "200"), nil).Once()

	w := doRequest(r, http.MethodPost, "/escrows/"+escrowID+"/cancel", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.EscrowResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.EscrowStatusCancelled, resp.Escrow.Status)
}

func TestEscrowHandler_GetEscrowByProjectID(t *testing.T) {
	svc := new(MockEscrowService)
	r := newTestEngine(svc, nil)
	svc.On("GetEscrowByProjectID", mock.Anything, "project-1").Return(sampleEscrow(domain.EscrowStatusActive, "0"), nil).Once()
	svc.On("GetEscrowByProjectID", mock.Anything, "project-x").Return(nil, domain.ErrEscrowNotFound).Once()

	w := doRequest(r, http.MethodGet, "/escrows/project/project-1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.EscrowResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "project-1", resp.Escrow.ProjectID)

	w = doRequest(r, http.MethodGet, "/escrows/project/project-x", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.KindNotFound, decodeError(t, w).Kind)
}

func TestEscrowHandler_GetEscrow(t *testing.T) {
	svc := new(MockEscrowService)
	r := newTestEngine(svc, nil)
	svc.On("GetEscrow", mock.Anything, escrowID).Return(sampleEscrow(domain.EscrowStatusActive, "0"), nil).Once()

	w := doRequest(r, http.MethodGet, "/escrows/"+escrowID, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestEscrowHandler_ListTransactions(t *testing.T) {
	svc := new(MockEscrowService)
	r := newTestEngine(svc, nil)
	svc.On("ListTransactions", mock.Anything, escrowID).Return([]model.EscrowTransaction{
		{ID: "t1", EscrowID: escrowID, Type: domain.TransactionTypeHold, Amount: decimal.RequireFromString("1000"), CreatedAt: createdAt},
		{ID: "t2", EscrowID: escrowID, Type: domain.TransactionTypeRelease, Amount: decimal.RequireFromString("250.5"), CreatedAt: createdAt},
	}, nil).Once()

	w := doRequest(r, http.MethodGet, "/escrows/"+escrowID+"/transactions", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ListTransactionsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Transactions, 2)
	assert.Equal(t, "250.50", resp.Transactions[1].Amount)
}

func TestEscrowHandler_ListEscrows(t *testing.T) {
	t.Run("paginates with next cursor", func(t *testing.T) {
		svc := new(MockEscrowService)
		r := newTestEngine(svc, nil)

		rows := make([]model.Escrow, 3)
		for i := range rows {
			e := sampleEscrow(domain.EscrowStatusActive, "0")
			e.ID = fmt.Sprintf("6f1c2a9e-3b7d-4c55-9a0e-2f8d1b4c7e1%d", i)
			e.CreatedAt = createdAt.Add(-time.Duration(i) * time.Minute)
			rows[i] = *e
		}

		svc.On("ListEscrows", mock.Anything, mock.MatchedBy(func(f storage.EscrowFilter) bool {
			return f.PageSize == 2 && f.Status == domain.EscrowStatusActive && f.Cursor == nil
		})).Return(rows, nil).Once()

		w := doRequest(r, http.MethodGet, "/escrows?status=ACTIVE&page_size=2", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.ListEscrowsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Escrows, 2)
		require.NotEmpty(t, resp.NextCursor)

		cursor, err := DecodeEscrowCursor(resp.NextCursor)
		require.NoError(t, err)
		assert.Equal(t, rows[1].ID, cursor.EscrowID)
		assert.True(t, rows[1].CreatedAt.Equal(cursor.CreatedAt))
	})

	t.Run("last page has no cursor and page size is clamped", func(t *testing.T) {
		svc := new(MockEscrowService)
		r := newTestEngine(svc, nil)

		svc.On("ListEscrows", mock.Anything, mock.MatchedBy(func(f storage.EscrowFilter) bool {
			return f.PageSize == maxPageSize
		})).Return([]model.Escrow{*sampleEscrow(domain.EscrowStatusActive, "0")}, nil).Once()

		w := doRequest(r, http.MethodGet, "/escrows?page_size=1000", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.ListEscrowsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Escrows, 1)
		assert.Empty(t, resp.NextCursor)
	})

	t.Run("bad cursor", func(t *testing.T) {
		svc := new(MockEscrowService)
		r := newTestEngine(svc, nil)

		w := doRequest(r, http.MethodGet, "/escrows?cursor=bm90LWEtY3Vyc29y", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "ListEscrows", mock.Anything, mock.Anything)
	})
}
