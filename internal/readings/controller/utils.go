package controller

import (
	"errors"
	"net/http"
	"strconv"
)

const (
	maxLimit = 1000

	// timestampLayout matches the SQLite CURRENT_TIMESTAMP form; clients
	// append "Z" to parse it as UTC.
	timestampLayout = "2006-01-02 15:04:05"

	dashboardRecent  = 20
	dashboardRefresh = 60
)

// parseLimit reads the optional 'limit' query parameter.
func parseLimit(r *http.Request, def int) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid 'limit' (expected integer)")
	}
	if n <= 0 {
		return 0, errors.New("'limit' must be > 0")
	}
	if n > maxLimit {
		return 0, errors.New("'limit' must be <= 1000")
	}
	return n, nil
}
