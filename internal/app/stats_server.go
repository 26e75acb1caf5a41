package app

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// startStatsServer starts the HTTP server for health checks, stats, the KOL
// API, and the live websocket feed.
func (r *Runner) startStatsServer(port int) {
	r.healthServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r.routes(),
	}

	go func() {
		if err := r.healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.clients.Logger.Error("stats server error", zap.Error(err))
		}
	}()
}

func (r *Runner) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// JSON stats endpoint
	mux.HandleFunc("/api/tracker/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, r.GetStats())
	})

	// KOL roster: list and add
	mux.HandleFunc("/api/kols", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, r.roster.All())

		case http.MethodPost:
			var body struct {
				Name   string `json:"name"`
				Handle string `json:"handle"`
				Wallet string `json:"wallet"`
				Group  string `json:"group"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid body")
				return
			}
			kol, err := r.roster.Add(body.Name, body.Handle, body.Wallet, body.Group)
			if err != nil {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			writeJSON(w, http.StatusCreated, kol)

		case http.MethodDelete:
			wallet := req.URL.Query().Get("wallet")
			if wallet == "" {
				writeError(w, http.StatusBadRequest, "wallet query param required")
				return
			}
			if !r.roster.Remove(wallet) {
				writeError(w, http.StatusNotFound, "wallet not tracked")
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"removed": true})

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})

	// Toggle alert flag for one wallet
	mux.HandleFunc("/api/kols/alert", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var body struct {
			Wallet  string `json:"wallet"`
			AlertOn bool   `json:"alertOn"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		if !r.roster.SetAlert(body.Wallet, body.AlertOn) {
			writeError(w, http.StatusNotFound, "wallet not tracked")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"alertOn": body.AlertOn})
	})

	// Current standings with period metrics
	mux.HandleFunc("/api/kols/pnl", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"period": r.scheduler.CurrentPeriod(),
			"kols":   r.roster.All(),
		})
	})

	// Force a full roster refresh for a period
	mux.HandleFunc("/api/kols/refresh-pnl", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		period := req.URL.Query().Get("period")
		if period == "" {
			period = PeriodDaily
		}
		if !ValidPeriod(period) {
			writeError(w, http.StatusBadRequest, "unknown period")
			return
		}

		results := r.scheduler.ForceRefreshAll(req.Context(), period)

		ok, failed := 0, 0
		for _, res := range results {
			if res.Err != nil {
				failed++
			} else {
				ok++
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"period":    period,
			"refreshed": ok,
			"failed":    failed,
			"kols":      r.roster.All(),
		})
	})

	// Recent trades feed
	mux.HandleFunc("/api/trades", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, r.tradeStore.Recent(req.Context(), 100, 0))
	})

	// Live event stream
	mux.HandleFunc("/ws", r.broadcaster.HandleWS)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
