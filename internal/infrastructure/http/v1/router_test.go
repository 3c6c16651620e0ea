package v1_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmstock/internal/domain"
	"pharmstock/internal/domain/billing"
	"pharmstock/internal/domain/ledger"
	"pharmstock/internal/domain/payment"
	"pharmstock/internal/domain/transport"
	v1 "pharmstock/internal/infrastructure/http/v1"
	"pharmstock/internal/infrastructure/storage/memory"
	"pharmstock/pkg/logger"
	"pharmstock/pkg/numerator"
)

func setupRouter(t *testing.T) http.Handler {
	t.Helper()

	store := memory.NewStore()
	txm := memory.NewTxManager(store)
	ledgerRepo := memory.NewLedgerRepo(store)
	billRepo := memory.NewBillRepo(store)
	num := numerator.New(memory.NewSequencer(store))
	audit := domain.NopAuditLogger{}

	return v1.NewRouter(v1.RouterConfig{
		Logger:     logger.Default(),
		Version:    "test",
		Bills:      billing.NewService(billRepo, ledgerRepo, num, txm, audit),
		Ledger:     ledger.NewService(ledgerRepo),
		Transports: transport.NewService(memory.NewTransportRepo(store), ledgerRepo, num, txm, audit),
		Payments:   payment.NewService(memory.NewPaymentRepo(store), billRepo, num, txm, audit),
	})
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "tester")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func purchaseBody(barcode string, qty int64) map[string]any {
	return map[string]any{
		"counterpartyId": "company-1",
		"branch":         "Slemany",
		"lines": []map[string]any{
			{
				"barcode":    barcode,
				"name":       "Paracetamol 500mg",
				"quantity":   qty,
				"netPrice":   "100",
				"outPrice":   "120",
				"expireDate": "2027-05-01T00:00:00Z",
			},
		},
	}
}

func saleBody(barcode string, qty int64) map[string]any {
	return map[string]any{
		"counterpartyId": "pharmacy-1",
		"branch":         "Slemany",
		"lines": []map[string]any{
			{
				"barcode":  barcode,
				"quantity": qty,
				"netPrice": "100",
				"outPrice": "120",
			},
		},
	}
}

func TestPurchaseBillFeedsAvailability(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/purchase-bills", purchaseBody("8690000000001", 10))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode(t, w)
	assert.NotEmpty(t, resp["id"])
	assert.Contains(t, resp["number"], "PB-")

	w = doJSON(t, router, http.MethodGet, "/api/v1/stock/8690000000001/availability", nil)
	require.Equal(t, http.StatusOK, w.Code)

	avail := decode(t, w)
	assert.Equal(t, float64(10), avail["total"])
}

func TestSaleBillInsufficientStock(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/purchase-bills", purchaseBody("8690000000002", 5))
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/sale-bills", saleBody("8690000000002", 8))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	resp := decode(t, w)
	assert.Equal(t, "INSUFFICIENT_STOCK", resp["code"])

	// Nothing was deducted.
	w = doJSON(t, router, http.MethodGet, "/api/v1/stock/8690000000002/availability", nil)
	avail := decode(t, w)
	assert.Equal(t, float64(5), avail["total"])
}

func TestSaleBillLifecycle(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/purchase-bills", purchaseBody("8690000000003", 10))
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/sale-bills", saleBody("8690000000003", 4))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	number := decode(t, w)["number"].(string)
	assert.Contains(t, number, "SB-")

	w = doJSON(t, router, http.MethodGet, "/api/v1/bills/"+number, nil)
	require.Equal(t, http.StatusOK, w.Code)
	bill := decode(t, w)
	assert.Equal(t, "sale", bill["kind"])
	assert.Equal(t, "Unpaid", bill["paymentStatus"])

	w = doJSON(t, router, http.MethodDelete, "/api/v1/bills/"+number, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	// Deleting restored the stock.
	w = doJSON(t, router, http.MethodGet, "/api/v1/stock/8690000000003/availability", nil)
	avail := decode(t, w)
	assert.Equal(t, float64(10), avail["total"])

	w = doJSON(t, router, http.MethodGet, "/api/v1/bills/"+number, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTransportAcceptMovesStock(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/purchase-bills", purchaseBody("8690000000004", 10))
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/transports", map[string]any{
		"fromBranch": "Slemany",
		"toBranch":   "Erbil",
		"items": []map[string]any{
			{
				"barcode":  "8690000000004",
				"quantity": 6,
				"netPrice": "100",
				"outPrice": "120",
			},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	transportID := decode(t, w)["id"].(string)

	// In transit: deducted from source, not yet credited anywhere.
	w = doJSON(t, router, http.MethodGet, "/api/v1/stock/8690000000004/availability", nil)
	avail := decode(t, w)
	assert.Equal(t, float64(4), avail["total"])

	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/transports/%s/receive", transportID), map[string]any{
		"accept": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "received", decode(t, w)["status"])

	w = doJSON(t, router, http.MethodGet, "/api/v1/stock/8690000000004/availability", nil)
	avail = decode(t, w)
	branches := avail["branches"].(map[string]any)
	assert.Equal(t, float64(4), branches["Slemany"])
	assert.Equal(t, float64(6), branches["Erbil"])

	// A resolved transport cannot be resolved again.
	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/transports/%s/receive", transportID), map[string]any{
		"accept": false,
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_STATE_TRANSITION", decode(t, w)["code"])
}

func TestPaymentClaimExclusivity(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/purchase-bills", purchaseBody("8690000000005", 10))
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/sale-bills", saleBody("8690000000005", 5))
	require.Equal(t, http.StatusCreated, w.Code)
	billNumber := decode(t, w)["number"].(string)

	w = doJSON(t, router, http.MethodGet, "/api/v1/counterparties/pharmacy-1/outstanding", nil)
	require.Equal(t, http.StatusOK, w.Code)
	outstanding := decode(t, w)
	assert.Equal(t, "600", outstanding["netAmount"])

	w = doJSON(t, router, http.MethodPost, "/api/v1/payments", map[string]any{
		"counterpartyId": "pharmacy-1",
		"billNumbers":    []string{billNumber},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, decode(t, w)["number"], "PAY-")

	// The bill is claimed; a second payment naming it must fail.
	w = doJSON(t, router, http.MethodPost, "/api/v1/payments", map[string]any{
		"counterpartyId": "pharmacy-1",
		"billNumbers":    []string{billNumber},
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_CLAIMED", decode(t, w)["code"])

	// The claimed bill left the outstanding position.
	w = doJSON(t, router, http.MethodGet, "/api/v1/counterparties/pharmacy-1/outstanding", nil)
	outstanding = decode(t, w)
	assert.Equal(t, "0", outstanding["netAmount"])
}

func TestStockConservationAcrossOperations(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/purchase-bills", purchaseBody("8690000000006", 20))
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/sale-bills", saleBody("8690000000006", 6))
	require.Equal(t, http.StatusCreated, w.Code)
	saleNumber := decode(t, w)["number"].(string)

	w = doJSON(t, router, http.MethodPost, "/api/v1/returns", map[string]any{
		"counterpartyId": "pharmacy-1",
		"billNumber":     saleNumber,
		"items": []map[string]any{
			{"barcode": "8690000000006", "quantity": 2},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	sendTransport := func(qty int64) string {
		w := doJSON(t, router, http.MethodPost, "/api/v1/transports", map[string]any{
			"fromBranch": "Slemany",
			"toBranch":   "Erbil",
			"items": []map[string]any{
				{
					"barcode":  "8690000000006",
					"quantity": qty,
					"netPrice": "100",
					"outPrice": "120",
				},
			},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		return decode(t, w)["id"].(string)
	}

	accepted := sendTransport(5)
	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/transports/%s/receive", accepted), map[string]any{
		"accept": true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	rejected := sendTransport(3)
	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/transports/%s/receive", rejected), map[string]any{
		"accept": false,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rejected", decode(t, w)["status"])

	// Across the whole sequence the branch totals add up to
	// purchased + returned - sold; transfers only move units.
	w = doJSON(t, router, http.MethodGet, "/api/v1/stock/8690000000006/availability", nil)
	require.Equal(t, http.StatusOK, w.Code)
	avail := decode(t, w)
	assert.Equal(t, float64(16), avail["total"])
	branches := avail["branches"].(map[string]any)
	assert.Equal(t, float64(11), branches["Slemany"])
	assert.Equal(t, float64(5), branches["Erbil"])
}

func TestValidationErrors(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/purchase-bills", map[string]any{
		"counterpartyId": "company-1",
		"branch":         "Baghdad",
		"lines": []map[string]any{
			{"barcode": "123", "quantity": 1, "netPrice": "1", "outPrice": "2"},
		},
	})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, "VALIDATION_ERROR", decode(t, w)["code"])

	w = doJSON(t, router, http.MethodPost, "/api/v1/transports/not-a-uuid/receive", map[string]any{"accept": true})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
