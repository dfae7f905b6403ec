package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/gazette/internal/models"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteResult writes a service envelope. Failed envelopes map to 400 unless
// the message names a missing resource, which maps to 404.
func WriteResult(w http.ResponseWriter, result *models.ServiceResult) error {
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
		if strings.Contains(result.Message, "不存在") {
			status = http.StatusNotFound
		}
	}
	return WriteJSON(w, status, result)
}

// DecodeBody parses the request body into a JSON object map
func DecodeBody(r *http.Request) (map[string]interface{}, error) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}

// PathID extracts the path segment following a prefix, stripping any
// trailing sub-path. "/api/tasks/task_1/status" with prefix "/api/tasks/"
// yields "task_1".
func PathID(r *http.Request, prefix string) string {
	id := strings.TrimPrefix(r.URL.Path, prefix)
	if idx := strings.Index(id, "/"); idx >= 0 {
		id = id[:idx]
	}
	return id
}

// QueryInt parses an integer query parameter, falling back to a default
func QueryInt(r *http.Request, name string, fallback int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

// QueryBool parses an optional boolean query parameter. Absent or
// unparseable values return nil.
func QueryBool(r *http.Request, name string) *bool {
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			return &v
		}
	}
	return nil
}
