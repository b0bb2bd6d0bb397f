package server

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"
)

type handlers struct {
	db      *sql.DB
	started time.Time
}

// handleHealthz responds to liveness probe requests by checking database connectivity.
func (h *handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz responds to readiness probe requests.
func (h *handlers) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
		{"schema", func() error {
			var one int
			err := h.db.QueryRowContext(r.Context(), "SELECT 1 FROM accounts LIMIT 1").Scan(&one)
			if err == sql.ErrNoRows {
				return nil
			}
			return err
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// handleStatus reports aggregate repost counts and uptime.
func (h *handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	type statusResponse struct {
		UptimeSeconds int64          `json:"uptime_seconds"`
		Reposts       map[string]int `json:"reposts"`
		Accounts      int            `json:"accounts"`
	}
	resp := statusResponse{
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Reposts:       map[string]int{},
	}

	rows, err := h.db.QueryContext(r.Context(),
		"SELECT COALESCE(status,'unknown'), COUNT(*) FROM reposts GROUP BY status")
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var status string
			var n int
			if rows.Scan(&status, &n) == nil {
				resp.Reposts[status] = n
			}
		}
	}
	if err := h.db.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM accounts").Scan(&resp.Accounts); err != nil {
		resp.Accounts = 0
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
