package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"roomsplit/internal/core"
	"roomsplit/internal/log"
	"roomsplit/internal/settlement"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	items, err := s.expenses.List(r.Context())
	if err != nil {
		writeServiceError(w, r, log.OpList, err)
		return
	}
	out := make([]expenseResponse, 0, len(items))
	for _, e := range items {
		out = append(out, newExpenseResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	in, err := parseExpenseInput(r)
	if errors.Is(err, errBadRequestBody) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err != nil {
		writeServiceError(w, r, log.OpCreate, err)
		return
	}

	e, err := s.expenses.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, newExpenseResponse(e))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	removed, err := s.expenses.Delete(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, log.OpDelete, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Expense deleted successfully",
		"id":      removed.ID,
	})
}

// handleStatistics reports the current month, or the month given as
// ?month=YYYY-MM.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	var (
		st  core.Statistics
		err error
	)
	if month := strings.TrimSpace(r.URL.Query().Get("month")); month != "" {
		window, perr := settlement.ParseMonth(month, s.loc)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "Invalid month, expected YYYY-MM")
			return
		}
		st, err = s.stats.Month(r.Context(), window.From)
	} else {
		st, err = s.stats.Current(r.Context())
	}
	if err != nil {
		writeServiceError(w, r, log.OpSettle, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatisticsResponse(st, s.expenses.Roster()))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	n, err := s.expenses.Reset(r.Context())
	if err != nil {
		writeServiceError(w, r, log.OpReset, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "All expenses have been reset successfully",
		"deleted": n,
	})
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"participants": s.expenses.Roster().Names()})
}
