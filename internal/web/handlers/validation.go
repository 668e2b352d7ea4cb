package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/saltyorg/cartridges/internal/database"
)

// FieldError represents a rejected form field. It matches
// database.ErrInvalidInput so callers classify it as invalid input.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e FieldError) Is(target error) bool {
	return target == database.ErrInvalidInput
}

// idParam parses the {id} URL parameter
func idParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, FieldError{Field: "id", Message: fmt.Sprintf("%q is not a valid id", raw)}
	}
	return id, nil
}

// formID parses a required positive id form field
func formID(r *http.Request, field string) (int64, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return 0, FieldError{Field: field, Message: "is required"}
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, FieldError{Field: field, Message: fmt.Sprintf("%q is not a valid selection", raw)}
	}
	return id, nil
}

// formIDs parses a multi-valued id form field; empty values are skipped
func formIDs(r *http.Request, field string) ([]int64, error) {
	var ids []int64
	for _, raw := range r.Form[field] {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			return nil, FieldError{Field: field, Message: fmt.Sprintf("%q is not a valid selection", raw)}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// formInt parses an integer form field, returning def when it is empty
func formInt(r *http.Request, field string, def int) (int, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, FieldError{Field: field, Message: fmt.Sprintf("%q is not a number", raw)}
	}
	return n, nil
}

// formDuration parses a required duration field such as "90s" or "2m".
func formDuration(r *http.Request, field string) (time.Duration, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return 0, FieldError{Field: field, Message: "is required"}
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, FieldError{Field: field, Message: fmt.Sprintf("%q is not a duration", raw)}
	}
	if d < time.Second {
		return 0, FieldError{Field: field, Message: "must be at least 1s"}
	}
	return d, nil
}

// ValidateBackupDir checks a backup directory setting. Relative paths are
// resolved against the working directory and may not climb above it.
func ValidateBackupDir(path string) error {
	if path == "" {
		return FieldError{Field: "backup directory", Message: "cannot be empty"}
	}

	if strings.ContainsRune(path, '\x00') {
		return FieldError{Field: "backup directory", Message: "contains invalid characters"}
	}

	if filepath.IsAbs(path) {
		return nil
	}

	cleaned := filepath.Clean(path)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return FieldError{Field: "backup directory", Message: "cannot traverse above the working directory"}
	}

	return nil
}
