package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"clinic/execution-service/internal/execution"
	"clinic/execution-service/internal/models"
	"clinic/execution-service/internal/store"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Handler struct {
	service  *execution.Service
	users    store.UserStore
	logger   *zap.Logger
	realtime http.Handler
}

type actionRequest struct {
	RequestID  string `json:"request_id"`
	ExecutorID string `json:"executor_id"`
}

type noteRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Options struct {
	Logger *zap.Logger
	// Realtime is mounted under /realtime/ when set.
	Realtime http.Handler
}

func NewHandler(service *execution.Service, users store.UserStore, options Options) *Handler {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:  service,
		users:    users,
		logger:   logger,
		realtime: options.Realtime,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/login", h.handleLogin)
	mux.HandleFunc("/api/users/", h.handleUser)
	mux.HandleFunc("/api/execution/queue", h.handleQueue)
	mux.HandleFunc("/api/items/", h.handleItems)
	if h.realtime != nil {
		mux.Handle("/realtime/", h.realtime)
	}
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	requestID := requestIDFromRequest(r)
	executorID := strings.TrimSpace(r.URL.Query().Get("executor_id"))
	queue, err := h.service.Queue(r.Context(), executorID)
	if err != nil {
		h.fail(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, queue)
}

func (h *Handler) handleItems(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/items/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	itemID := parts[0]
	if itemID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !isValidUUID(itemID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "item_id must be a UUID")
		return
	}

	switch {
	case len(parts) == 1:
		h.handleGetItem(w, r, itemID)
	case len(parts) == 2 && parts[1] == "notes":
		h.handleNotes(w, r, itemID)
	case len(parts) == 3 && parts[1] == "actions":
		h.handleItemAction(w, r, itemID, parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request, itemID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	item, err := h.service.GetItem(r.Context(), itemID)
	if err != nil {
		h.fail(w, requestIDFromRequest(r), err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) handleItemAction(w http.ResponseWriter, r *http.Request, itemID, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var apply func(ctx context.Context, itemID, executorID string) (models.ProcedureItem, error)
	switch action {
	case "claim":
		apply = h.service.Claim
	case "start":
		apply = h.service.Advance
	case "complete":
		apply = h.service.Complete
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var req actionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	requestID := firstNonEmpty(req.RequestID, requestIDFromRequest(r))

	item, err := apply(r.Context(), itemID, req.ExecutorID)
	if err != nil {
		h.fail(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) handleNotes(w http.ResponseWriter, r *http.Request, itemID string) {
	switch r.Method {
	case http.MethodGet:
		notes, err := h.service.ListNotes(r.Context(), itemID)
		if err != nil {
			h.fail(w, requestIDFromRequest(r), err)
			return
		}
		writeJSON(w, http.StatusOK, notes)
	case http.MethodPost:
		var req noteRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		requestID := firstNonEmpty(req.RequestID, requestIDFromRequest(r))
		note, err := h.service.AddNote(r.Context(), itemID, req.UserID, req.Text)
		if err != nil {
			h.fail(w, requestID, err)
			return
		}
		writeJSON(w, http.StatusCreated, note)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/users/"), "/")
	if userID == "" || strings.Contains(userID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !isValidUUID(userID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "user_id must be a UUID")
		return
	}
	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		h.fail(w, requestIDFromRequest(r), err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requestID := requestIDFromRequest(r)

	var req loginRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.Login == "" || req.Password == "" {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "login and password are required")
		return
	}

	user, err := h.users.Login(r.Context(), store.LoginInput{Login: req.Login, Password: req.Password})
	if err != nil {
		h.fail(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) fail(w http.ResponseWriter, requestID string, err error) {
	status, code, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("request_id", requestID), zap.String("code", code), zap.Error(err))
	}
	writeError(w, requestID, status, code, msg)
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}

	switch t := target.(type) {
	case *actionRequest:
		t.RequestID = strings.TrimSpace(t.RequestID)
		t.ExecutorID = strings.TrimSpace(t.ExecutorID)
	case *noteRequest:
		t.RequestID = strings.TrimSpace(t.RequestID)
		t.UserID = strings.TrimSpace(t.UserID)
	case *loginRequest:
		t.Login = strings.TrimSpace(t.Login)
	default:
		writeError(w, "", http.StatusBadRequest, "invalid_request", "invalid request payload")
		return false
	}
	return true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_request", invalidArgumentMessage(err)
	case errors.Is(err, store.ErrItemNotFound):
		return http.StatusNotFound, "item_not_found", "item not found"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, store.ErrAlreadyClaimed):
		return http.StatusConflict, "already_claimed", "item already claimed by another executor"
	case errors.Is(err, store.ErrNotOwner):
		return http.StatusForbidden, "not_owner", "item is not assigned to this executor"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "item state does not allow this action"
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid credentials"
	case errors.Is(err, store.ErrStore):
		return http.StatusServiceUnavailable, "store_unavailable", "store unavailable, retry later"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

// invalidArgumentMessage strips the sentinel prefix so the client sees which field was wrong.
func invalidArgumentMessage(err error) string {
	text := err.Error()
	prefix := store.ErrInvalidArgument.Error() + ": "
	if idx := strings.Index(text, prefix); idx >= 0 {
		return text[idx+len(prefix):]
	}
	return store.ErrInvalidArgument.Error()
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
