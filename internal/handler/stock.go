package handler

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"
	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/service"
)

type StockHandler struct {
	Service service.StockService
	Logger  *slog.Logger
}

func (h StockHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stock", h.list)
	r.Get("/stock/{id}/history", h.history)
}

func (h StockHandler) RegisterManagerRoutes(r chi.Router) {
	r.Post("/stock/adjust", h.adjust)
	r.Get("/stock/movements/export", h.export)
}

func (h StockHandler) list(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	items, err := h.Service.List(r.Context(), user.Scope(), queryLimit(r, 500))
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	resp := make([]map[string]any, 0, len(items))
	for _, m := range items {
		resp = append(resp, medicineResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h StockHandler) adjust(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req struct {
		MedicineID int64  `json:"medicineId"`
		Change     int64  `json:"change"`
		Type       string `json:"type"`
		Note       string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.MedicineID == 0 {
		writeError(w, http.StatusBadRequest, "medicineId is required")
		return
	}
	change, err := h.Service.Adjust(r.Context(), service.AdjustInput{
		Scope:      user.Scope(),
		MedicineID: req.MedicineID,
		Delta:      req.Change,
		Type:       domain.MovementType(req.Type),
		ActorID:    user.ID,
		Note:       req.Note,
	})
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            change.Medicine.ID,
		"previousStock": change.Previous,
		"stock":         change.New,
		"movement":      movementResponse(change.Movement),
	})
}

func (h StockHandler) history(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	items, err := h.Service.History(r.Context(), user.Scope(), id, queryLimit(r, 100))
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	resp := make([]map[string]any, 0, len(items))
	for _, m := range items {
		resp = append(resp, movementResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h StockHandler) export(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	var medicineID int64
	if raw := r.URL.Query().Get("medicineId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid medicineId")
			return
		}
		medicineID = id
	}

	items, err := h.Service.History(r.Context(), user.Scope(), medicineID, queryLimit(r, 5000))
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}

	filenameSuffix := time.Now().Format("20060102_150405")
	switch format {
	case "csv":
		data, err := exportMovementsCSV(items)
		if err != nil {
			writeDomainError(w, h.Logger, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"stock_movements_%s.csv\"", filenameSuffix))
		_, _ = w.Write(data)
	case "xlsx", "excel":
		data, err := exportMovementsXLSX(items)
		if err != nil {
			writeDomainError(w, h.Logger, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"stock_movements_%s.xlsx\"", filenameSuffix))
		_, _ = w.Write(data)
	default:
		writeError(w, http.StatusBadRequest, "invalid format (use csv or xlsx)")
	}
}

var movementHeader = []string{"ID", "Date", "Medicine", "Type", "Quantity", "Previous", "New", "Reference", "Actor", "Note"}

func movementRow(m domain.StockMovement) []any {
	ref := ""
	if m.ReferenceID != nil {
		ref = fmt.Sprintf("%s#%d", m.ReferenceType, *m.ReferenceID)
	}
	return []any{
		m.ID,
		m.CreatedAt.UTC().Format(time.RFC3339),
		m.MedicineName,
		string(m.Type),
		m.Quantity,
		m.PreviousStock,
		m.NewStock,
		ref,
		m.ActorName,
		m.Note,
	}
}

func exportMovementsCSV(items []domain.StockMovement) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	_ = w.Write(movementHeader)
	for _, m := range items {
		row := movementRow(m)
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = fmt.Sprint(v)
		}
		_ = w.Write(record)
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func exportMovementsXLSX(items []domain.StockMovement) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "Movements"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	for c, v := range movementHeader {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		_ = f.SetCellValue(sheet, cell, v)
	}
	for r, m := range items {
		for c, v := range movementRow(m) {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 8)
	_ = f.SetColWidth(sheet, "B", "B", 22)
	_ = f.SetColWidth(sheet, "C", "C", 28)
	_ = f.SetColWidth(sheet, "D", "G", 12)
	_ = f.SetColWidth(sheet, "H", "I", 18)
	_ = f.SetColWidth(sheet, "J", "J", 32)

	style, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D1FAE5"}, Pattern: 1},
	})
	_ = f.SetCellStyle(sheet, "A1", "J1", style)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func movementResponse(m domain.StockMovement) map[string]any {
	return map[string]any{
		"id":            m.ID,
		"medicineId":    m.MedicineID,
		"medicineName":  m.MedicineName,
		"type":          string(m.Type),
		"quantity":      m.Quantity,
		"previousStock": m.PreviousStock,
		"newStock":      m.NewStock,
		"referenceType": m.ReferenceType,
		"referenceId":   m.ReferenceID,
		"actorId":       m.ActorID,
		"actorName":     m.ActorName,
		"note":          m.Note,
		"createdAt":     m.CreatedAt.UTC().Format(time.RFC3339),
	}
}
