/**
 * @description
 * HTTP handlers for the ledger service. Each handler decodes and validates the
 * request body, resolves the caller from the auth context and delegates to the
 * app.Service workflow. Domain errors are mapped to status codes in one place.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: URL parameters.
 * - github.com/go-playground/validator/v10: request DTO validation.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/moneypay/ledger-service/internal/app"
	"github.com/moneypay/ledger-service/internal/commission"
	"github.com/moneypay/ledger-service/internal/ledger"
	"github.com/moneypay/ledger-service/internal/store"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

// Handler holds the dependencies shared by every route.
type Handler struct {
	service  *app.Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a new handler bound to service.
func NewHandler(service *app.Service, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Request body is required")
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return "Validation failed: " + strings.Join(parts, "; ")
}

// caller returns the authenticated account id or writes a 401.
func caller(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := AccountIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return 0, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

// conflictBody is the 409 payload, also used for 400 insufficient balance.
// Balance fields appear only when a balance check failed.
type conflictBody struct {
	Error          string           `json:"error"`
	CurrentStatus  string           `json:"current_status,omitempty"`
	CurrentBalance *decimal.Decimal `json:"current_balance,omitempty"`
	Required       *decimal.Decimal `json:"required,omitempty"`
}

// respondError maps a workflow error to its HTTP status.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *app.ConflictError
	var shortfall *ledger.InsufficientBalanceError
	switch {
	case errors.As(err, &shortfall):
		body := conflictBody{Error: "Insufficient balance"}
		// Another account's balance is never echoed back.
		if id, ok := AccountIDFromContext(r.Context()); ok && id == shortfall.AccountID {
			body.CurrentBalance = &shortfall.Balance
			body.Required = &shortfall.Required
		}
		writeJSON(w, http.StatusBadRequest, body)
	case errors.As(err, &conflict):
		body := conflictBody{Error: conflict.Message, CurrentStatus: conflict.Status}
		if conflict.CurrentBalance.Valid {
			body.CurrentBalance = &conflict.CurrentBalance.Decimal
		}
		if conflict.Required.Valid {
			body.Required = &conflict.Required.Decimal
		}
		writeJSON(w, http.StatusConflict, body)
	case errors.Is(err, app.ErrSenderNotFound),
		errors.Is(err, app.ErrRecipientNotFound),
		errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrTransactionNotFound),
		errors.Is(err, store.ErrWithdrawalRequestNotFound),
		errors.Is(err, store.ErrStateSettingNotFound),
		errors.Is(err, store.ErrNotificationNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrForbidden), errors.Is(err, ledger.ErrAccountSuspended):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance):
		writeError(w, http.StatusBadRequest, "Insufficient balance")
	case errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, app.ErrInvalidAgent),
		errors.Is(err, app.ErrRecipientNotAllowed),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrSameAccount),
		errors.Is(err, commission.ErrNegativeAmount),
		errors.Is(err, commission.ErrUnknownPurpose),
		errors.Is(err, commission.ErrInvalidTier):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrDuplicateReference):
		writeError(w, http.StatusConflict, "Transaction reference collision, please retry")
	default:
		h.logger.Error("request failed", "component", "api", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// HealthCheck is the unauthenticated liveness probe.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
