package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"pharmapos-backend/internal/credit"
	"pharmapos-backend/internal/domain"
)

type CreditHandler struct {
	Ledger credit.Ledger
	Logger *slog.Logger
}

func (h CreditHandler) RegisterRoutes(r chi.Router) {
	r.Get("/credit-sales", h.list)
	r.Get("/credit-sales/{id}", h.get)
	r.Post("/credit-sales/{id}/payments", h.pay)
}

func (h CreditHandler) list(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	status := domain.CreditStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))
	items, err := h.Ledger.List(r.Context(), user.Scope(), status, queryLimit(r, 100))
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	resp := make([]map[string]any, 0, len(items))
	for _, cs := range items {
		resp = append(resp, creditSaleResponse(cs))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h CreditHandler) get(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	cs, payments, err := h.Ledger.Get(r.Context(), user.Scope(), id)
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	payload := creditSaleResponse(*cs)
	history := make([]map[string]any, 0, len(payments))
	for _, p := range payments {
		history = append(history, creditPaymentResponse(p))
	}
	payload["payments"] = history
	writeJSON(w, http.StatusOK, payload)
}

func (h CreditHandler) pay(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Method string          `json:"paymentMethod"`
		Notes  string          `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	res, err := h.Ledger.ApplyPayment(r.Context(), credit.PaymentInput{
		Scope:        user.Scope(),
		CreditSaleID: id,
		Amount:       req.Amount,
		Method:       domain.ParsePaymentMethod(req.Method),
		ActorID:      user.ID,
		Notes:        req.Notes,
	})
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"creditSale": creditSaleResponse(res.CreditSale),
		"payment":    creditPaymentResponse(res.Payment),
		"applied":    money(res.Applied),
		"excess":     money(res.Excess),
	})
}

func creditSaleResponse(cs domain.CreditSale) map[string]any {
	var due any
	if cs.DueDate != nil {
		due = cs.DueDate.Format(dateLayout)
	}
	return map[string]any{
		"id":            cs.ID,
		"saleId":        cs.SaleID,
		"customerName":  cs.CustomerName,
		"customerPhone": cs.CustomerPhone,
		"totalAmount":   money(cs.TotalAmount),
		"paidAmount":    money(cs.PaidAmount),
		"balanceAmount": money(cs.BalanceAmount),
		"status":        string(cs.Status),
		"dueDate":       due,
		"createdAt":     cs.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt":     cs.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func creditPaymentResponse(p domain.CreditPayment) map[string]any {
	return map[string]any{
		"id":             p.ID,
		"amount":         money(p.Amount),
		"paymentMethod":  string(p.Method),
		"receivedById":   p.ReceivedByID,
		"receivedByName": p.ReceivedByName,
		"notes":          p.Notes,
		"createdAt":      p.CreatedAt.UTC().Format(time.RFC3339),
	}
}
