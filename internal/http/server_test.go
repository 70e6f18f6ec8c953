package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"roomsplit/internal/cache"
	"roomsplit/internal/core"
	"roomsplit/internal/log"
	"roomsplit/internal/metrics"
	"roomsplit/internal/middleware/ratelimit"
	"roomsplit/internal/services"
	"roomsplit/internal/store/memory"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	srv   *Server
	store *memory.Store
}

func newTestEnv(t *testing.T, mutate func(*Config), seed ...core.Expense) *testEnv {
	t.Helper()
	roster, err := core.NewRoster("A", "B", "C")
	if err != nil {
		t.Fatal(err)
	}
	logger := log.New(log.Config{Level: slog.LevelError, Output: io.Discard})
	st := memory.New(seed...)
	clock := func() time.Time { return testNow }

	stats := services.NewStatisticsService(st, roster, time.UTC,
		services.WithStatisticsClock(clock),
		services.WithStatisticsLogger(logger),
		services.WithCache(cache.NewLRUCache[core.Statistics](8, time.Minute)))
	n := 0
	exp := services.NewExpenseService(st, roster,
		services.WithClock(clock),
		services.WithLocation(time.UTC),
		services.WithExpenseLogger(logger),
		services.WithInvalidator(stats),
		services.WithIDGenerator(func() string {
			n++
			return "id-" + strconv.Itoa(n)
		}))

	cfg := Config{
		Expenses:   exp,
		Statistics: stats,
		Ready:      st.Ping,
		Logger:     logger,
		Location:   time.UTC,
		RateLimit:  ratelimit.Config{Requests: 1000, Window: time.Minute},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := NewServer(cfg)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: st}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func expense(id, payer string, cents int64, date time.Time) core.Expense {
	return core.Expense{ID: id, Item: "thing", Amount: core.Money{Cents: cents}, Payer: payer, Date: date, CreatedAt: date}
}

func TestHealthReadyAndUnknownRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := env.do(t, http.MethodGet, path, ""); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	rr := env.do(t, http.MethodGet, "/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if got := decode[errorResponse](t, rr); got.Error != "Route not found" {
		t.Fatalf("error = %q", got.Error)
	}

	rr = env.do(t, http.MethodPut, "/api/expenses", `{}`)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing")
	}
}

func TestReadyzReportsStoreFailure(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Ready = func(context.Context) error { return errors.New("db down") }
	})
	if rr := env.do(t, http.MethodGet, "/readyz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestCreateExpense(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/expenses", `{"item":"Milk","price":12.5,"person":"B","note":"2L"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body)
	}
	if !strings.Contains(rr.Body.String(), `"price":12.50`) {
		t.Fatalf("price must be a two-decimal number: %s", rr.Body)
	}
	got := decode[expenseResponse](t, rr)
	if got.ID != "id-1" || got.Item != "Milk" || got.Price.Cents != 1250 || got.Person != "B" || got.Note != "2L" {
		t.Fatalf("unexpected record %+v", got)
	}
	if !got.Date.Equal(testNow) {
		t.Fatalf("date = %v, want now", got.Date)
	}

	rr = env.do(t, http.MethodPost, "/api/expenses", `{"item":"Rent","price":"900.00","person":"C","date":"2026-10-01"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("string price: expected 201, got %d: %s", rr.Code, rr.Body)
	}

	rr = env.do(t, http.MethodPost, "/api/expenses", `{"item":"Gas","price":1.25e2,"person":"A"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("exponent price: expected 201, got %d: %s", rr.Code, rr.Body)
	}
	if got := decode[expenseResponse](t, rr); got.Price.Cents != 12500 {
		t.Fatalf("exponent price = %d cents", got.Price.Cents)
	}

	form := url.Values{"item": {"Bread"}, "price": {"2,40"}, "person": {"A"}}
	req := httptest.NewRequest(http.MethodPost, "/api/expenses", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr = httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("form body: expected 201, got %d: %s", rr.Code, rr.Body)
	}
	if got := decode[expenseResponse](t, rr); got.Price.Cents != 240 {
		t.Fatalf("form price = %d cents", got.Price.Cents)
	}
}

func TestCreateExpenseRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.MaxBodyBytes = 256 })

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantFields []string
	}{
		{"all fields bad", `{"item":"","price":-3,"person":"Mallory","date":"yesterday"}`, http.StatusBadRequest, []string{"item", "price", "person", "date"}},
		{"missing price", `{"item":"Milk","person":"A"}`, http.StatusBadRequest, []string{"price"}},
		{"zero price", `{"item":"Milk","price":0,"person":"A"}`, http.StatusBadRequest, []string{"price"}},
		{"exponent in string price", `{"item":"Milk","price":"1e2","person":"A"}`, http.StatusBadRequest, []string{"price"}},
		{"negative exponent price", `{"item":"Milk","price":-1e2,"person":"A"}`, http.StatusBadRequest, []string{"price"}},
		{"price over cap", `{"item":"Milk","price":60000000000000000,"person":"A"}`, http.StatusBadRequest, []string{"price"}},
		{"item too long", `{"item":"` + strings.Repeat("x", 101) + `","price":1,"person":"A"}`, http.StatusBadRequest, []string{"item"}},
		{"malformed json", `{"item":`, http.StatusBadRequest, nil},
		{"body too large", `{"item":"Milk","price":1,"person":"A","note":"` + strings.Repeat("n", 400) + `"}`, http.StatusRequestEntityTooLarge, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/expenses", tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.wantStatus, rr.Body)
			}
			resp := decode[errorResponse](t, rr)
			if resp.Error == "" {
				t.Fatal("error message missing")
			}
			fields := map[string]bool{}
			for _, fe := range resp.Errors {
				fields[fe.Field] = true
				if fe.Message == "" {
					t.Errorf("empty message for %s", fe.Field)
				}
			}
			for _, f := range tt.wantFields {
				if !fields[f] {
					t.Errorf("missing field error %q in %+v", f, resp.Errors)
				}
			}
		})
	}

	if items, _ := env.store.List(context.Background()); len(items) != 0 {
		t.Fatalf("rejected input must not be stored, got %d records", len(items))
	}
}

func TestListAndDeleteExpenses(t *testing.T) {
	env := newTestEnv(t, nil,
		expense("old", "A", 100, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)),
		expense("new", "B", 200, time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)),
	)

	rr := env.do(t, http.MethodGet, "/api/expenses", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status=%d", rr.Code)
	}
	list := decode[[]expenseResponse](t, rr)
	if len(list) != 2 || list[0].ID != "new" || list[1].ID != "old" {
		t.Fatalf("expected newest first, got %+v", list)
	}

	rr = env.do(t, http.MethodDelete, "/api/expenses/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if got := decode[errorResponse](t, rr); got.Error != "Expense not found" {
		t.Fatalf("error = %q", got.Error)
	}

	rr = env.do(t, http.MethodDelete, "/api/expenses/old", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d", rr.Code)
	}
	body := decode[map[string]string](t, rr)
	if body["message"] != "Expense deleted successfully" || body["id"] != "old" {
		t.Fatalf("unexpected body %v", body)
	}
	if list := decode[[]expenseResponse](t, env.do(t, http.MethodGet, "/api/expenses", "")); len(list) != 1 {
		t.Fatalf("expected 1 record after delete, got %d", len(list))
	}
}

func TestStatistics(t *testing.T) {
	oct := time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, nil,
		expense("1", "A", 30000, oct),
		expense("2", "B", 999, time.Date(2026, 9, 30, 23, 0, 0, 0, time.UTC)),
	)

	rr := env.do(t, http.MethodGet, "/api/statistics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d: %s", rr.Code, rr.Body)
	}
	got := decode[statisticsResponse](t, rr)
	if got.Total.Cents != 30000 || got.Month != "October 2026" {
		t.Fatalf("unexpected header %+v", got)
	}
	if got.From != "2026-10-01" || got.To != "2026-10-31" {
		t.Fatalf("window = %s..%s", got.From, got.To)
	}
	if got.Average != "100.00" {
		t.Fatalf("average = %s", got.Average)
	}
	if got.PerPerson["A"].Cents != 30000 || got.PerPerson["B"].Cents != 0 || got.PerPerson["C"].Cents != 0 {
		t.Fatalf("perPerson = %v", got.PerPerson)
	}
	want := []splitResponse{
		{From: "B", To: "A", Amount: core.Money{Cents: 10000}},
		{From: "C", To: "A", Amount: core.Money{Cents: 10000}},
	}
	if len(got.Splits) != len(want) {
		t.Fatalf("splits = %+v", got.Splits)
	}
	for i := range want {
		if got.Splits[i] != want[i] {
			t.Fatalf("split %d = %+v, want %+v", i, got.Splits[i], want[i])
		}
	}
	if got.Balances["A"].Cents != 20000 || got.Balances["B"].Cents != -10000 {
		t.Fatalf("balances = %v", got.Balances)
	}
	if strings.Join(got.Participants, ",") != "A,B,C" {
		t.Fatalf("participants = %v", got.Participants)
	}

	rr = env.do(t, http.MethodGet, "/api/statistics?month=2026-09", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("month status=%d", rr.Code)
	}
	sep := decode[statisticsResponse](t, rr)
	if sep.Total.Cents != 999 || sep.Month != "September 2026" || len(sep.Splits) != 2 {
		t.Fatalf("unexpected september stats %+v", sep)
	}

	rr = env.do(t, http.MethodGet, "/api/statistics?month=2026-13", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad month, got %d", rr.Code)
	}
}

func TestStatisticsEmptyMonth(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/api/statistics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"splits":[]`) {
		t.Fatalf("splits must be an empty array: %s", rr.Body)
	}
	got := decode[statisticsResponse](t, rr)
	if got.Total.Cents != 0 || got.Average != "0.00" {
		t.Fatalf("unexpected stats %+v", got)
	}
}

func TestStatisticsReportsIntegrityError(t *testing.T) {
	env := newTestEnv(t, nil, expense("bad-1", "Mallory", 500, time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)))

	rr := env.do(t, http.MethodGet, "/api/statistics", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	got := decode[errorResponse](t, rr)
	if !strings.Contains(got.Error, "bad-1") || !strings.Contains(got.Error, "Mallory") {
		t.Fatalf("error must name the record and payer: %q", got.Error)
	}
}

func TestStatisticsFollowWrites(t *testing.T) {
	env := newTestEnv(t, nil)

	if rr := env.do(t, http.MethodGet, "/api/statistics", ""); rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/api/expenses", `{"item":"Milk","price":3,"person":"A"}`); rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d", rr.Code)
	}
	got := decode[statisticsResponse](t, env.do(t, http.MethodGet, "/api/statistics", ""))
	if got.Total.Cents != 300 {
		t.Fatalf("statistics not refreshed after write: total=%d", got.Total.Cents)
	}
}

func TestResetAndRoster(t *testing.T) {
	d := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, nil, expense("1", "A", 100, d), expense("2", "B", 100, d))

	rr := env.do(t, http.MethodPost, "/api/reset", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("reset status=%d", rr.Code)
	}
	body := decode[map[string]any](t, rr)
	if body["message"] != "All expenses have been reset successfully" || body["deleted"] != float64(2) {
		t.Fatalf("unexpected body %v", body)
	}

	roster := decode[map[string][]string](t, env.do(t, http.MethodGet, "/api/roster", ""))
	if strings.Join(roster["participants"], ",") != "A,B,C" {
		t.Fatalf("roster = %v", roster)
	}
}

func TestRateLimitOnAPI(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.RateLimit = ratelimit.Config{Requests: 2, Window: time.Hour}
	})

	for i := 0; i < 2; i++ {
		if rr := env.do(t, http.MethodGet, "/api/roster", ""); rr.Code != http.StatusOK {
			t.Fatalf("request %d status=%d", i+1, rr.Code)
		}
	}
	rr := env.do(t, http.MethodGet, "/api/roster", "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After missing")
	}
	if rr := env.do(t, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Fatalf("health checks are not rate limited, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	env := newTestEnv(t, func(c *Config) { c.Metrics = m })

	env.do(t, http.MethodGet, "/api/roster", "")
	env.do(t, http.MethodDelete, "/api/expenses/nope", "")

	rr := env.do(t, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`roomsplit_http_requests_total{code="200",method="GET",route="/api/roster"} 1`,
		`roomsplit_http_requests_total{code="404",method="DELETE",route="/api/expenses/{id}"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}
