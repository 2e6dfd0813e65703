package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pharmapos-backend/internal/credit"
	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/idempotency"
	"pharmapos-backend/internal/memstore"
	"pharmapos-backend/internal/sale"
	"pharmapos-backend/internal/server/authctx"
	"pharmapos-backend/internal/service"
)

type testAPI struct {
	store   *memstore.Store
	router  chi.Router
	cashier domain.User
	manager domain.User
	med     domain.MedicineStock
	user    *authctx.CurrentUser
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memstore.New()
	api := &testAPI{store: store}
	api.cashier = store.AddUser(domain.User{BusinessID: 1, Name: "Ama", Email: "ama@x", Role: domain.RoleCashier})
	api.manager = store.AddUser(domain.User{BusinessID: 1, Name: "Efua", Email: "efua@x", Role: domain.RoleManager})
	api.med = store.AddMedicine(domain.MedicineStock{
		BusinessID: 1, Name: "Paracetamol", BaseUnit: "tablet",
		UnitPrice: decimal.NewFromInt(5), UnitCost: decimal.NewFromInt(2), Quantity: 40,
		Units: []domain.UnitConversion{{Label: "strip", BaseQuantity: 10}},
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	guard := idempotency.NewGuard(idempotency.NewMemoryStore(), time.Minute)
	coord := sale.NewCoordinator(store, store, guard, logger, true)
	stockSvc := service.StockService{Tx: store, Actors: store, Reader: store, Catalog: store}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if api.user != nil {
				req = req.WithContext(authctx.WithCurrentUser(req.Context(), *api.user))
			}
			next.ServeHTTP(w, req)
		})
	})
	sales := SaleHandler{Coordinator: coord, Sales: store, Currency: "GHS", Logger: logger}
	sales.RegisterRoutes(r)
	sales.RegisterManagerRoutes(r)
	CreditHandler{Ledger: credit.Ledger{Tx: store, Reader: store, Actors: store, Logger: logger}, Logger: logger}.RegisterRoutes(r)
	stock := StockHandler{Service: stockSvc, Logger: logger}
	stock.RegisterRoutes(r)
	stock.RegisterManagerRoutes(r)
	MedicineHandler{Service: stockSvc, Logger: logger}.RegisterRoutes(r)
	api.router = r
	api.actAs(api.cashier)
	return api
}

func (a *testAPI) actAs(u domain.User) {
	a.user = &authctx.CurrentUser{ID: u.ID, BusinessID: u.BusinessID, Email: u.Email, Role: u.Role}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var resp apiResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func dataMap(t *testing.T, resp apiResponse) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func TestCreateSaleEndpoint(t *testing.T) {
	api := newTestAPI(t)

	body := map[string]any{
		"items":         []map[string]any{{"medicineId": api.med.ID, "quantity": 1, "unitLabel": "strip"}},
		"paymentMethod": "cash",
		"discount":      "2.50",
	}
	rec, resp := api.do(t, http.MethodPost, "/sales", body, "Idempotency-Key", "till-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := dataMap(t, resp)
	assert.Equal(t, "50.00", data["subtotal"])
	assert.Equal(t, "47.50", data["total"])
	assert.Equal(t, "CASH", data["paymentMethod"])
	assert.Equal(t, "Ama", data["cashierName"])
	assert.Equal(t, "GHS", data["currency"])
	saleID := int64(data["id"].(float64))

	rec, _ = api.do(t, http.MethodPost, "/sales", body, "Idempotency-Key", "till-1")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, resp = api.do(t, http.MethodGet, fmt.Sprintf("/sales/%d", saleID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := dataMap(t, resp)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, float64(10), items[0].(map[string]any)["baseQuantity"])

	rec, resp = api.do(t, http.MethodGet, "/sales", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 1)

	m, _ := api.store.Medicine(api.med.ID)
	assert.Equal(t, int64(30), m.Quantity)
}

func TestCreateSaleErrors(t *testing.T) {
	api := newTestAPI(t)

	rec, resp := api.do(t, http.MethodPost, "/sales", map[string]any{
		"items":         []map[string]any{{"medicineId": api.med.ID, "quantity": 41}},
		"paymentMethod": "CASH",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	data := dataMap(t, resp)
	assert.Equal(t, float64(40), data["available"])
	assert.Equal(t, float64(41), data["requested"])

	rec, _ = api.do(t, http.MethodPost, "/sales", map[string]any{
		"items":         []map[string]any{{"medicineId": api.med.ID, "quantity": 1}},
		"paymentMethod": "CREDIT",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.do(t, http.MethodPost, "/sales", map[string]any{
		"items":         []map[string]any{{"medicineId": 9999, "quantity": 1}},
		"paymentMethod": "CASH",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = api.do(t, http.MethodPost, "/sales", map[string]any{
		"items":         []map[string]any{{"medicineId": api.med.ID, "quantity": 1}},
		"paymentMethod": "CREDIT",
		"customerName":  "Yaw",
		"customerPhone": "0200000000",
		"dueDate":       "next week",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.do(t, http.MethodPost, "/sales", map[string]any{
		"items":         []map[string]any{{"medicineId": api.med.ID, "quantity": 1}},
		"paymentMethod": "CASH",
		"discount":      "0.005",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.do(t, http.MethodGet, "/sales/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.do(t, http.MethodGet, "/sales/9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	api.user = nil
	rec, _ = api.do(t, http.MethodGet, "/sales", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreditPaymentEndpoint(t *testing.T) {
	api := newTestAPI(t)

	rec, resp := api.do(t, http.MethodPost, "/sales", map[string]any{
		"items":         []map[string]any{{"medicineId": api.med.ID, "quantity": 20}},
		"paymentMethod": "CREDIT",
		"customerName":  "Yaw",
		"customerPhone": "0200000000",
		"dueDate":       "2026-12-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	creditID := int64(dataMap(t, resp)["creditSaleId"].(float64))

	rec, _ = api.do(t, http.MethodPost, fmt.Sprintf("/credit-sales/%d/payments", creditID), map[string]any{
		"amount": "0.004", "paymentMethod": "CASH",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = api.do(t, http.MethodPost, fmt.Sprintf("/credit-sales/%d/payments", creditID), map[string]any{
		"amount": "60", "paymentMethod": "MOBILE_MONEY",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cs := dataMap(t, resp)["creditSale"].(map[string]any)
	assert.Equal(t, "PARTIAL", cs["status"])
	assert.Equal(t, "40.00", cs["balanceAmount"])
	assert.Equal(t, "2026-12-01", cs["dueDate"])

	rec, resp = api.do(t, http.MethodPost, fmt.Sprintf("/credit-sales/%d/payments", creditID), map[string]any{
		"amount": 50, "paymentMethod": "cash",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	data := dataMap(t, resp)
	assert.Equal(t, "40.00", data["applied"])
	assert.Equal(t, "10.00", data["excess"])

	rec, _ = api.do(t, http.MethodPost, fmt.Sprintf("/credit-sales/%d/payments", creditID), map[string]any{
		"amount": 1, "paymentMethod": "CASH",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, resp = api.do(t, http.MethodGet, fmt.Sprintf("/credit-sales/%d", creditID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, dataMap(t, resp)["payments"], 2)

	rec, resp = api.do(t, http.MethodGet, "/credit-sales?status=paid", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 1)

	rec, _ = api.do(t, http.MethodGet, "/credit-sales?status=overdue", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVoidEndpoint(t *testing.T) {
	api := newTestAPI(t)

	rec, resp := api.do(t, http.MethodPost, "/sales", map[string]any{
		"items":         []map[string]any{{"medicineId": api.med.ID, "quantity": 2, "unitLabel": "strip"}},
		"paymentMethod": "CARD",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	saleID := int64(dataMap(t, resp)["id"].(float64))

	api.actAs(api.manager)
	rec, resp = api.do(t, http.MethodPost, fmt.Sprintf("/sales/%d/void", saleID), map[string]any{"reason": "wrong item"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	restored := dataMap(t, resp)["restored"].([]any)
	require.Len(t, restored, 1)
	assert.Equal(t, float64(20), restored[0].(map[string]any)["quantity"])

	m, _ := api.store.Medicine(api.med.ID)
	assert.Equal(t, int64(40), m.Quantity)

	rec, _ = api.do(t, http.MethodPost, fmt.Sprintf("/sales/%d/void", saleID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStockEndpoints(t *testing.T) {
	api := newTestAPI(t)
	api.actAs(api.manager)

	rec, resp := api.do(t, http.MethodPost, "/stock/adjust", map[string]any{
		"medicineId": api.med.ID, "change": -5, "type": "loss", "note": "expired",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(35), dataMap(t, resp)["stock"])

	rec, _ = api.do(t, http.MethodPost, "/stock/adjust", map[string]any{"medicineId": api.med.ID, "change": -100, "type": "LOSS"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = api.do(t, http.MethodPost, "/stock/adjust", map[string]any{"change": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = api.do(t, http.MethodGet, fmt.Sprintf("/stock/%d/history", api.med.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 1)

	rec, resp = api.do(t, http.MethodGet, "/stock", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := resp.Data.([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "5.00", list[0].(map[string]any)["unitPrice"])

	rec, _ = api.do(t, http.MethodGet, "/stock/movements/export?format=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID,Date,Medicine"))
	assert.Contains(t, lines[1], "expired")

	rec, _ = api.do(t, http.MethodGet, "/stock/movements/export?format=xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec, _ = api.do(t, http.MethodGet, "/stock/movements/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMedicineEndpoints(t *testing.T) {
	api := newTestAPI(t)
	api.actAs(api.manager)

	rec, resp := api.do(t, http.MethodPost, "/medicines", map[string]any{
		"name": "Cough Syrup", "baseUnit": "bottle", "unitPrice": "18.00", "unitCost": "11.00", "quantity": 12,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := dataMap(t, resp)
	assert.Equal(t, float64(12), data["quantity"])
	id := int64(data["id"].(float64))

	rec, _ = api.do(t, http.MethodPost, "/medicines", map[string]any{"name": "cough syrup"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = api.do(t, http.MethodPut, fmt.Sprintf("/medicines/%d", id), map[string]any{
		"name": "Cough Syrup", "unitPrice": "20.00", "unitCost": "11.00",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	m, _ := api.store.Medicine(id)
	assert.True(t, m.UnitPrice.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, int64(12), m.Quantity)

	rec, _ = api.do(t, http.MethodPut, "/medicines/9999", map[string]any{"name": "Ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteDomainErrorHidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, slog.New(slog.NewTextHandler(io.Discard, nil)), errors.New("connection reset by peer"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestQueryLimit(t *testing.T) {
	cases := []struct {
		name     string
		query    string
		fallback int
		want     int
	}{
		{"absent", "", 100, 100},
		{"explicit", "?limit=20", 100, 20},
		{"not a number", "?limit=abc", 100, 100},
		{"negative", "?limit=-5", 100, 100},
		{"capped", "?limit=100000000", 100, maxQueryLimit},
		{"large default keeps its own cap", "?limit=100000000", 5000, 5000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/sales"+tc.query, nil)
			assert.Equal(t, tc.want, queryLimit(r, tc.fallback))
		})
	}
}
