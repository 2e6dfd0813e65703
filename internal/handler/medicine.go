package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/service"
)

type MedicineHandler struct {
	Service service.StockService
	Logger  *slog.Logger
}

func (h MedicineHandler) RegisterRoutes(r chi.Router) {
	r.Post("/medicines", h.create)
	r.Put("/medicines/{id}", h.update)
}

type medicineRequest struct {
	Name         string                  `json:"name"`
	BaseUnit     string                  `json:"baseUnit"`
	UnitPrice    decimal.Decimal         `json:"unitPrice"`
	UnitCost     decimal.Decimal         `json:"unitCost"`
	Quantity     int64                   `json:"quantity"`
	ReorderLevel int64                   `json:"reorderLevel"`
	Units        []domain.UnitConversion `json:"units"`
}

func (req medicineRequest) toDomain() domain.MedicineStock {
	return domain.MedicineStock{
		Name:         req.Name,
		BaseUnit:     req.BaseUnit,
		UnitPrice:    req.UnitPrice,
		UnitCost:     req.UnitCost,
		Quantity:     req.Quantity,
		ReorderLevel: req.ReorderLevel,
		Units:        req.Units,
	}
}

func (h MedicineHandler) create(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req medicineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	saved, err := h.Service.CreateMedicine(r.Context(), user.Scope(), req.toDomain(), user.ID)
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, medicineResponse(*saved))
}

func (h MedicineHandler) update(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req medicineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	m := req.toDomain()
	m.ID = id
	if err := h.Service.UpdateMedicine(r.Context(), user.Scope(), m); err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func medicineResponse(m domain.MedicineStock) map[string]any {
	units := make([]map[string]any, 0, len(m.Units))
	for _, u := range m.Units {
		unit := map[string]any{"label": u.Label, "baseQuantity": u.BaseQuantity}
		if u.SellPrice != nil {
			unit["sellPrice"] = money(*u.SellPrice)
		}
		units = append(units, unit)
	}
	return map[string]any{
		"id":           m.ID,
		"name":         m.Name,
		"baseUnit":     m.BaseUnit,
		"unitPrice":    money(m.UnitPrice),
		"unitCost":     money(m.UnitCost),
		"quantity":     m.Quantity,
		"reorderLevel": m.ReorderLevel,
		"lowStock":     m.LowStock(),
		"units":        units,
	}
}
