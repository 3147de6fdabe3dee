// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carestore

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPHandlers exposes StoreService over JSON HTTP.
type HTTPHandlers struct {
	service  *StoreService
	jwt      *JWTAuth
	logger   *slog.Logger
	TokenTTL time.Duration
}

// NewHTTPHandlers creates handlers. jwt is only needed for HandleSignin.
func NewHTTPHandlers(service *StoreService, jwt *JWTAuth, logger *slog.Logger) *HTTPHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandlers{service: service, jwt: jwt, logger: logger, TokenTTL: time.Hour}
}

// Register mounts the routes on mux. Document and presence routes require a
// bearer token; signin does not.
func (h *HTTPHandlers) Register(mux *http.ServeMux) {
	protect := h.jwt.Middleware
	mux.Handle("PUT /documents/{path...}", protect(http.HandlerFunc(h.HandleWrite)))
	mux.Handle("GET /documents/{path...}", protect(http.HandlerFunc(h.HandleGet)))
	mux.Handle("GET /documents", protect(http.HandlerFunc(h.HandleList)))
	mux.Handle("GET /presence", protect(http.HandlerFunc(h.HandlePresence)))
	mux.HandleFunc("POST /auth/signin", h.HandleSignin)
	mux.HandleFunc("GET /health", h.HandleHealth)
}

// HandleWrite upserts the request body at the path in the URL.
func (h *HTTPHandlers) HandleWrite(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthenticated, "authentication required")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(h.service.config.MaxBodyBytes)))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeInvalidArgument, ErrBodyTooLarge.Error())
			return
		}
		writeError(w, http.StatusBadRequest, CodeInvalidArgument, "failed to read body")
		return
	}

	resp, err := h.service.Put(r.Context(), p, r.PathValue("path"), body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGet returns a single document.
func (h *HTTPHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthenticated, "authentication required")
		return
	}
	doc, err := h.service.Get(r.Context(), p, r.PathValue("path"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// HandleList returns one page of a collection. Query parameters: collection,
// order_by, desc, after, limit and f.{field} equality filters.
func (h *HTTPHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthenticated, "authentication required")
		return
	}
	params := r.URL.Query()
	q := ListQuery{
		Collection: params.Get("collection"),
		OrderBy:    params.Get("order_by"),
		After:      params.Get("after"),
	}
	if v := params.Get("desc"); v != "" {
		desc, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidArgument, "desc must be a boolean")
			return
		}
		q.Desc = desc
	}
	if v := params.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, CodeInvalidArgument, "limit must be a positive integer")
			return
		}
		q.Limit = limit
	}
	for k, vs := range params {
		if field, ok := strings.CutPrefix(k, "f."); ok && len(vs) > 0 {
			if q.Filters == nil {
				q.Filters = make(map[string]string)
			}
			q.Filters[field] = vs[0]
		}
	}

	resp, err := h.service.List(r.Context(), p, q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleSignin mints a token for the requested user and device. It performs
// no credential check and is meant for development servers and simulators.
func (h *HTTPHandlers) HandleSignin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidArgument, "failed to parse signin request")
		return
	}
	if req.UserID == "" || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidArgument, "user and device are required")
		return
	}
	if req.Role != "" && req.Role != RoleUser && req.Role != RoleAdmin {
		writeError(w, http.StatusBadRequest, CodeInvalidArgument, "unknown role")
		return
	}
	token, exp, err := h.jwt.GenerateToken(req.UserID, req.DeviceID, req.Role, h.TokenTTL)
	if err != nil {
		h.logger.Error("Failed to generate token", "error", err, "user_id", req.UserID)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, SigninResponse{Token: token, ExpiresAt: exp.UTC()})
}

func (h *HTTPHandlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail maps a service error to a status and error code.
func (h *HTTPHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, code, "internal error")
		return
	}
	h.logger.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	writeError(w, status, code, err.Error())
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden, CodePermissionDenied
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge, CodeInvalidArgument
	case errors.Is(err, ErrInvalidPath), errors.Is(err, ErrInvalidCursor),
		errors.Is(err, ErrInvalidField), errors.Is(err, ErrInvalidBody):
		return http.StatusBadRequest, CodeInvalidArgument
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// writeError writes a standardized error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
