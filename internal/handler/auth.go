package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"pharmapos-backend/internal/service"
)

type AuthHandler struct {
	Service *service.AuthService
	Logger  *slog.Logger
}

func (h AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.login)
}

func (h AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	res, err := h.Service.Login(r.Context(), service.LoginInput{
		Email:    strings.ToLower(req.Email),
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		writeDomainError(w, h.Logger, err)
		return
	}
	writeAuthResponse(w, res)
}

func writeAuthResponse(w http.ResponseWriter, res *service.AuthResult) {
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     res.AccessToken,
		"expiresAt": res.ExpiresAt.UTC().Format(time.RFC3339),
		"user": map[string]any{
			"id":         strconv.FormatInt(res.User.ID, 10),
			"businessId": strconv.FormatInt(res.User.BusinessID, 10),
			"name":       res.User.Name,
			"email":      res.User.Email,
			"role":       string(res.User.Role),
		},
	})
}
