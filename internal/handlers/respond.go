// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers contains the HTTP handlers of the taxonomy service.
// Handlers are grouped by audience (admin, storefront) and receive their
// dependencies through the handler struct.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/samber/oops"

	"taxonomy/internal/hierarchy"
	"taxonomy/internal/middleware"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps err onto its status and error envelope. Server errors
// are logged with their oops context; client errors at debug level.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := hierarchy.KindOf(err)
	status := kind.HTTPStatus()

	if status >= http.StatusInternalServerError {
		logError(logger, r, "request failed", err)
	} else {
		logger.Debug("request rejected",
			"request_id", middleware.RequestIDFrom(r.Context()),
			"code", kind.Code(),
			"error", err,
		)
	}

	writeJSON(w, status, errorBody{
		Message: hierarchy.Message(err),
		Error:   kind.String(),
		Code:    kind.Code(),
	})
}

// logError logs err with its oops code and context when it has them.
func logError(logger *slog.Logger, r *http.Request, msg string, err error) {
	attrs := []any{
		"request_id", middleware.RequestIDFrom(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"error", err.Error(),
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil && code != "" {
			attrs = append(attrs, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			attrs = append(attrs, "context", ctx)
		}
	}
	logger.Error(msg, attrs...)
}

// decodeJSON reads the request body into v. Malformed bodies become
// InvalidInput errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return nil
	}

	var maxErr *http.MaxBytesError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return hierarchy.InvalidInput("", "request body must be a JSON object")
	case errors.As(err, &maxErr):
		return hierarchy.InvalidInput("", "request body is too large")
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			return hierarchy.InvalidInput("", "request body must be a JSON object")
		}
		return hierarchy.InvalidInput(field, field+" has the wrong type")
	}
	return hierarchy.InvalidInput("", "request body is not valid JSON")
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (*int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, hierarchy.InvalidInput(name, name+" must be an integer")
	}
	return &v, nil
}

// queryID returns an optional id query parameter. Empty means absent.
func queryID(r *http.Request, name string) *string {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil
	}
	return &v
}
