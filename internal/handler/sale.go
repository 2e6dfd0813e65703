package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/ports"
	"pharmapos-backend/internal/sale"
)

type SaleHandler struct {
	Coordinator *sale.Coordinator
	Sales       ports.SaleReader
	Currency    string
	Logger      *slog.Logger
}

func (h SaleHandler) RegisterRoutes(r chi.Router) {
	r.Post("/sales", h.create)
	r.Get("/sales", h.list)
	r.Get("/sales/{id}", h.get)
}

// RegisterManagerRoutes holds the operations a cashier may not perform.
func (h SaleHandler) RegisterManagerRoutes(r chi.Router) {
	r.Post("/sales/{id}/void", h.void)
}

func (h SaleHandler) create(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Items          []sale.ItemInput `json:"items"`
		PaymentMethod  string           `json:"paymentMethod"`
		Discount       decimal.Decimal  `json:"discount"`
		Tax            decimal.Decimal  `json:"tax"`
		CustomerName   string           `json:"customerName"`
		CustomerPhone  string           `json:"customerPhone"`
		Notes          string           `json:"notes"`
		DueDate        string           `json:"dueDate"`
		IdempotencyKey string           `json:"idempotencyKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	due, err := parseOptionalDate(req.DueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "dueDate must be YYYY-MM-DD")
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = req.IdempotencyKey
	}

	res, err := h.Coordinator.CreateSale(r.Context(), sale.CreateInput{
		Scope:          user.Scope(),
		CashierID:      user.ID,
		Items:          req.Items,
		PaymentMethod:  domain.ParsePaymentMethod(req.PaymentMethod),
		Discount:       req.Discount,
		Tax:            req.Tax,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		Notes:          req.Notes,
		DueDate:        due,
		IdempotencyKey: key,
	})
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	payload := saleResponse(res.Sale, h.Currency)
	payload["idempotencyKey"] = res.IdempotencyKey
	writeJSON(w, http.StatusCreated, payload)
}

func (h SaleHandler) list(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	items, err := h.Sales.ListSales(r.Context(), user.Scope(), queryLimit(r, 100))
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	resp := make([]map[string]any, 0, len(items))
	for _, s := range items {
		resp = append(resp, saleResponse(s, h.Currency))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h SaleHandler) get(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	s, err := h.Sales.GetSale(r.Context(), user.Scope(), id)
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, saleResponse(*s, h.Currency))
}

func (h SaleHandler) void(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
	}
	res, err := h.Coordinator.Void(r.Context(), sale.VoidInput{
		Scope:   user.Scope(),
		SaleID:  id,
		ActorID: user.ID,
		Reason:  req.Reason,
	})
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	restored := make([]map[string]any, 0, len(res.Restored))
	for _, c := range res.Restored {
		restored = append(restored, map[string]any{
			"medicineId":    c.Medicine.ID,
			"name":          c.Medicine.Name,
			"quantity":      c.New - c.Previous,
			"previousStock": c.Previous,
			"newStock":      c.New,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sale":          saleResponse(res.Sale, h.Currency),
		"restored":      restored,
		"discardedPaid": money(res.DiscardedPaid()),
	})
}

func saleResponse(s domain.Sale, currency string) map[string]any {
	items := make([]map[string]any, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, map[string]any{
			"id":           it.ID,
			"medicineId":   it.MedicineID,
			"name":         it.MedicineName,
			"quantity":     it.Quantity,
			"unit":         it.UnitLabel,
			"baseQuantity": it.BaseQuantity,
			"unitPrice":    money(it.UnitPrice),
			"subtotal":     money(it.Subtotal),
			"profit":       money(it.Profit),
		})
	}
	return map[string]any{
		"id":              s.ID,
		"transactionCode": s.TransactionCode,
		"cashierId":       s.CashierID,
		"cashierName":     s.CashierName,
		"paymentMethod":   string(s.PaymentMethod),
		"subtotal":        money(s.Subtotal),
		"discount":        money(s.Discount),
		"tax":             money(s.Tax),
		"total":           money(s.Total),
		"profit":          money(s.Profit),
		"costOfGoods":     money(s.CostOfGoods),
		"currency":        currency,
		"customerName":    s.CustomerName,
		"customerPhone":   s.CustomerPhone,
		"notes":           s.Notes,
		"creditSaleId":    s.CreditSaleID,
		"items":           items,
		"createdAt":       s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
