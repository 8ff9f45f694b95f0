package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"
	"os"
)

// NewMux registers /healthz and, when staticDir exists, serves it at /static/.
func NewMux(db *sql.DB, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db)

	if fi, err := os.Stat(staticDir); err == nil && fi.IsDir() {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	} else if staticDir != "" {
		slog.Debug("static dir not found, /static/ disabled", "dir", staticDir)
	}
	return mux
}
