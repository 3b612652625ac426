package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aegis-sec/aegis/internal/auth"
	"github.com/aegis-sec/aegis/internal/models"
	pkghttp "github.com/aegis-sec/aegis/pkg/http"
)

// LockoutAdminInterface defines the administrative lockout operations
type LockoutAdminInterface interface {
	Lock(ctx context.Context, accountID, reason, actorID string, until *time.Time) error
	Unlock(ctx context.Context, accountID, actorID string) error
}

// AddressAdminInterface defines the administrative address block operations
type AddressAdminInterface interface {
	Block(ctx context.Context, address, reason, actorID string) error
	Unblock(ctx context.Context, address, reason, actorID string) error
	ListBlocked(ctx context.Context, limit, offset int) ([]*models.BlockedAddress, error)
}

// PhoneAdminInterface defines the administrative phone verification override
type PhoneAdminInterface interface {
	AdminVerifyPhone(ctx context.Context, accountID, phoneNumber, actorID string) error
}

// EventQueryInterface defines the read side of the security event log
type EventQueryInterface interface {
	GetUserEvents(ctx context.Context, userID string, limit, offset int) ([]*models.SecurityEvent, error)
	GetEventsByType(ctx context.Context, eventType string, limit, offset int) ([]*models.SecurityEvent, error)
	GetEventsByTimeRange(ctx context.Context, from, to time.Time, limit, offset int) ([]*models.SecurityEvent, error)
	GetCountForUser(ctx context.Context, userID string) (int64, error)
}

// AdminHandler handles the administrative surface. Every route behind it
// passes through auth.RequireAdmin, so AdminFromContext is always set.
type AdminHandler struct {
	lockouts LockoutAdminInterface
	guard    AddressAdminInterface
	phones   PhoneAdminInterface
	events   EventQueryInterface
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(lockouts LockoutAdminInterface, guard AddressAdminInterface, phones PhoneAdminInterface, events EventQueryInterface) *AdminHandler {
	return &AdminHandler{
		lockouts: lockouts,
		guard:    guard,
		phones:   phones,
		events:   events,
	}
}

// Request DTOs

type LockAccountRequest struct {
	AccountID string     `json:"account_id" validate:"required,uuid"`
	Reason    string     `json:"reason" validate:"required,min=3,max=500"`
	Until     *time.Time `json:"until,omitempty"` // nil locks indefinitely
}

type UnlockAccountRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
}

type BlockAddressRequest struct {
	Address string `json:"address" validate:"required,ip"`
	Reason  string `json:"reason" validate:"required,min=3,max=500"`
}

type UnblockAddressRequest struct {
	Address string `json:"address" validate:"required,ip"`
	Reason  string `json:"reason" validate:"required,min=3,max=500"`
}

type VerifyPhoneRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
	Phone     string `json:"phone" validate:"required"`
}

// LockAccount places an administrative lock on an account
func (h *AdminHandler) LockAccount(w http.ResponseWriter, r *http.Request) {
	claims := auth.AdminFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req LockAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if req.Until != nil && req.Until.Before(time.Now()) {
		pkghttp.WriteBadRequest(w, "until must be in the future")
		return
	}

	if err := h.lockouts.Lock(r.Context(), req.AccountID, req.Reason, claims.ActorID, req.Until); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UnlockAccount lifts a lock and resets the failure counter
func (h *AdminHandler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	claims := auth.AdminFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req UnlockAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.lockouts.Unlock(r.Context(), req.AccountID, claims.ActorID); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// BlockAddress manually blocks a source address
func (h *AdminHandler) BlockAddress(w http.ResponseWriter, r *http.Request) {
	claims := auth.AdminFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req BlockAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.guard.Block(r.Context(), req.Address, req.Reason, claims.ActorID); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UnblockAddress lifts an address block. The block history is append-only,
// so this records an unblock entry rather than deleting anything.
func (h *AdminHandler) UnblockAddress(w http.ResponseWriter, r *http.Request) {
	claims := auth.AdminFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req UnblockAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.guard.Unblock(r.Context(), req.Address, req.Reason, claims.ActorID); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// VerifyPhone marks a phone number verified on an operator's authority,
// for support cases where the SMS confirmation flow cannot complete.
func (h *AdminHandler) VerifyPhone(w http.ResponseWriter, r *http.Request) {
	claims := auth.AdminFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req VerifyPhoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.phones.AdminVerifyPhone(r.Context(), req.AccountID, req.Phone, claims.ActorID); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListBlockedAddresses returns the currently blocked addresses
func (h *AdminHandler) ListBlockedAddresses(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	blocked, err := h.guard.ListBlocked(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"blocked_addresses": blocked,
		"count":             len(blocked),
	})
}

// QueryEvents reads the security event log. Exactly one of user_id,
// event_type, or a from/to pair selects the query shape.
func (h *AdminHandler) QueryEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)
	q := r.URL.Query()

	var (
		events []*models.SecurityEvent
		err    error
	)

	switch {
	case q.Get("user_id") != "":
		events, err = h.events.GetUserEvents(r.Context(), q.Get("user_id"), limit, offset)
	case q.Get("event_type") != "":
		events, err = h.events.GetEventsByType(r.Context(), q.Get("event_type"), limit, offset)
	case q.Get("from") != "" && q.Get("to") != "":
		var from, to time.Time
		from, err = time.Parse(time.RFC3339, q.Get("from"))
		if err == nil {
			to, err = time.Parse(time.RFC3339, q.Get("to"))
		}
		if err != nil {
			pkghttp.WriteBadRequest(w, "from and to must be RFC3339 timestamps")
			return
		}
		events, err = h.events.GetEventsByTimeRange(r.Context(), from, to, limit, offset)
	default:
		pkghttp.WriteBadRequest(w, "one of user_id, event_type, or from/to is required")
		return
	}
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// CountUserEvents returns the total number of events recorded for a user
func (h *AdminHandler) CountUserEvents(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "user_id is required")
		return
	}

	count, err := h.events.GetCountForUser(r.Context(), userID)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]int64{"count": count})
}

func paginationParams(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	return limit, offset
}
