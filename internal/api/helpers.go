package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"kyatlotto/internal/auth"
	"kyatlotto/internal/lottery"
	"kyatlotto/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorResponse{Error: code})
}

// decodeJSON reads exactly one JSON object with no unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("trailing data after JSON object")
	}
	return nil
}

// errorStatus maps a domain error to its HTTP status and code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrInvalidAmount), errors.Is(err, lottery.ErrBelowMinimum):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, store.ErrInsufficientBalance):
		return http.StatusConflict, "insufficient_balance"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrLedgerWriteFailed):
		return http.StatusServiceUnavailable, "ledger_write_failed"
	case errors.Is(err, auth.ErrInvalidSignature),
		errors.Is(err, auth.ErrAuthDateMissing),
		errors.Is(err, auth.ErrStaleAuth),
		errors.Is(err, auth.ErrMalformedUser):
		return http.StatusUnauthorized, "auth_invalid"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeStoreError writes the response for err and returns the code used.
// Unexpected errors are logged with op.
func (s *Server) writeStoreError(w http.ResponseWriter, op string, err error) string {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Printf("%s error: %v", op, err)
	}
	writeError(w, status, code)
	return code
}
