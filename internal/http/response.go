package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"roomsplit/internal/core"
	"roomsplit/internal/log"
	"roomsplit/internal/settlement"
	"roomsplit/internal/store"
)

type expenseResponse struct {
	ID        string     `json:"id"`
	Item      string     `json:"item"`
	Price     core.Money `json:"price"`
	Person    string     `json:"person"`
	Date      time.Time  `json:"date"`
	Note      string     `json:"note"`
	CreatedAt time.Time  `json:"createdAt"`
}

func newExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:        e.ID,
		Item:      e.Item,
		Price:     e.Amount,
		Person:    e.Payer,
		Date:      e.Date,
		Note:      e.Note,
		CreatedAt: e.CreatedAt,
	}
}

type splitResponse struct {
	From   string     `json:"from"`
	To     string     `json:"to"`
	Amount core.Money `json:"amount"`
}

type statisticsResponse struct {
	Total        core.Money            `json:"total"`
	PerPerson    map[string]core.Money `json:"perPerson"`
	Splits       []splitResponse       `json:"splits"`
	Month        string                `json:"month"`
	Average      json.Number           `json:"average"`
	Balances     map[string]core.Money `json:"balances"`
	Participants []string              `json:"participants"`
	From         string                `json:"from"`
	To           string                `json:"to"`
}

func newStatisticsResponse(st core.Statistics, roster core.Roster) statisticsResponse {
	splits := make([]splitResponse, 0, len(st.Settlement.Transfers))
	for _, t := range st.Settlement.Transfers {
		splits = append(splits, splitResponse{From: t.From, To: t.To, Amount: t.Amount})
	}
	return statisticsResponse{
		Total:        st.Totals.Total,
		PerPerson:    st.Totals.PerParticipant,
		Splits:       splits,
		Month:        st.Label,
		Average:      json.Number(st.Settlement.Average.StringFixed(2)),
		Balances:     st.Settlement.Balances,
		Participants: roster.Names(),
		From:         st.From.Format(time.DateOnly),
		To:           st.To.Format(time.DateOnly),
	}
}

type fieldErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error  string               `json:"error"`
	Errors []fieldErrorResponse `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps service and domain errors to HTTP responses. It is
// the only place statuses are chosen for failures.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var (
		verrs     core.ValidationErrors
		integrity *settlement.IntegrityError
		tooLarge  *http.MaxBytesError
	)
	logger := log.NewStructuredLogger(log.FromContext(r.Context()))

	switch {
	case errors.As(err, &verrs):
		resp := errorResponse{Error: "Validation failed", Errors: make([]fieldErrorResponse, 0, len(verrs))}
		for _, fe := range verrs {
			resp.Errors = append(resp.Errors, fieldErrorResponse{Field: fe.Field, Message: fe.Message})
		}
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Expense not found")
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
	case errors.As(err, &integrity):
		logger.LogError(r.Context(), "Stored expenses are inconsistent", err, op,
			log.LogFields{log.FieldExpenseID: integrity.ExpenseID, log.FieldPayer: integrity.Payer})
		writeError(w, http.StatusInternalServerError, "Expense data is inconsistent: "+integrity.Error())
	default:
		logger.LogError(r.Context(), "Request failed", err, op, nil)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
