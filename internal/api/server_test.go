package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/MvRens/ha-enever/internal/coordinator"
	"github.com/MvRens/ha-enever/internal/enever"
	"github.com/MvRens/ha-enever/internal/storage"
)

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func testLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type stubAPI struct{}

func (stubAPI) ElectricityToday(ctx context.Context) (enever.FeedBatch, error)    { return nil, nil }
func (stubAPI) ElectricityTomorrow(ctx context.Context) (enever.FeedBatch, error) { return nil, nil }
func (stubAPI) GasToday(ctx context.Context) (enever.FeedBatch, error)            { return nil, nil }
func (stubAPI) ValidateToken(ctx context.Context) error                           { return nil }

// newTestServer builds a server over pre-persisted feed state. The clock is
// fixed inside the schedules so current-price lookups resolve.
func newTestServer(t *testing.T) (*Server, time.Time) {
	t.Helper()
	loc := testLocation(t)
	now := time.Date(2024, 1, 15, 12, 30, 0, 0, loc)
	clock := fixedClock{now: now}
	st := storage.NewMemory()
	ctx := context.Background()

	elecStore := coordinator.NewStore(st, "electricity.60", loc)
	elecState := coordinator.NewState()
	for hour := 0; hour < 24; hour++ {
		elecState.Today = append(elecState.Today, enever.PriceQuote{
			Time: time.Date(2024, 1, 15, hour, 0, 0, 0, loc),
			Prices: map[string]decimal.Decimal{
				"ZP": decimal.NewFromInt(int64(hour)).Div(decimal.NewFromInt(100)),
			},
		})
	}
	if err := elecStore.Save(ctx, elecState); err != nil {
		t.Fatalf("save: %v", err)
	}

	gasStore := coordinator.NewStore(st, "gas", loc)
	gasState := coordinator.NewState()
	gasState.Today = enever.FeedBatch{{
		Time:   time.Date(2024, 1, 15, 6, 0, 0, 0, loc),
		Prices: map[string]decimal.Decimal{"ZP": decimal.RequireFromString("1.05")},
	}}
	if err := gasStore.Save(ctx, gasState); err != nil {
		t.Fatalf("save: %v", err)
	}

	client := stubAPI{}
	elec := coordinator.New(coordinator.NewElectricityFeed(client, "60", loc), elecStore, clock, loc, testLog())
	gas := coordinator.New(coordinator.NewGasFeed(client), gasStore, clock, loc, testLog())

	// First tick restores state without touching the stub API.
	if _, err := elec.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if _, err := gas.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	server := NewServer(Deps{
		Coordinators: map[string]*coordinator.Coordinator{
			"electricity.60": elec,
			"gas":            gas,
		},
		Storage:  st,
		Clock:    clock,
		Location: loc,
		Log:      testLog(),
	})
	return server, now
}

func get(t *testing.T, mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestFeedEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	mux := server.NewMux()

	rec := get(t, mux, "/prices/electricity")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var doc struct {
		Feed  string `json:"feed"`
		Today []struct {
			Prices map[string]string `json:"prices"`
		} `json:"today"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Feed != "electricity.60" {
		t.Errorf("feed = %q", doc.Feed)
	}
	if len(doc.Today) != 24 {
		t.Errorf("today quotes = %d, want 24", len(doc.Today))
	}

	if rec := get(t, mux, "/prices/unknown"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown feed status = %d, want 404", rec.Code)
	}
}

func TestProviderEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	mux := server.NewMux()

	rec := get(t, mux, "/prices/electricity.60/ZP")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var doc struct {
		Provider string            `json:"provider"`
		Name     string            `json:"name"`
		Current  *string           `json:"current"`
		Averages map[string]string `json:"averages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Name != "Zonneplan" {
		t.Errorf("name = %q", doc.Name)
	}
	// At 12:30 the 12:00 interval applies: 12/100.
	if doc.Current == nil || !mustDecimal(t, *doc.Current).Equal(decimal.RequireFromString("0.12")) {
		t.Errorf("current = %v, want 0.12", doc.Current)
	}
	if doc.Averages["today"] == "" {
		t.Error("missing today average")
	}
}

func TestGasProviderEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	mux := server.NewMux()

	rec := get(t, mux, "/prices/gas/ZP")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var doc struct {
		Current *string `json:"current"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Current == nil || !mustDecimal(t, *doc.Current).Equal(decimal.RequireFromString("1.05")) {
		t.Errorf("current = %v, want 1.05", doc.Current)
	}

	// Tibber publishes no gas prices.
	if rec := get(t, mux, "/prices/gas/TI"); rec.Code != http.StatusNotFound {
		t.Errorf("TI gas status = %d, want 404", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	mux := server.NewMux()

	rec := get(t, mux, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var doc struct {
		Feeds map[string]struct {
			TodayQuotes int `json:"today_quotes"`
		} `json:"feeds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Feeds["electricity.60"].TodayQuotes != 24 {
		t.Errorf("electricity quotes = %d, want 24", doc.Feeds["electricity.60"].TodayQuotes)
	}
	if doc.Feeds["gas"].TodayQuotes != 1 {
		t.Errorf("gas quotes = %d, want 1", doc.Feeds["gas"].TodayQuotes)
	}
}

func TestHealthEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	mux := server.NewMux()

	for _, path := range []string{"/healthz", "/readyz", "/livez"} {
		if rec := get(t, mux, path); rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}

func TestProvidersEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	mux := server.NewMux()

	rec := get(t, mux, "/providers")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var doc struct {
		Electricity []struct {
			Code string `json:"code"`
		} `json:"electricity"`
		Gas []struct {
			Code string `json:"code"`
		} `json:"gas"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Electricity) != 19 || len(doc.Gas) != 19 {
		t.Errorf("provider counts = %d/%d, want 19/19", len(doc.Electricity), len(doc.Gas))
	}
}

func TestRefreshEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	mux := server.NewMux()

	rec := get(t, mux, "/refresh")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d, want 405", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	post := httptest.NewRecorder()
	mux.ServeHTTP(post, req)
	if post.Code != http.StatusOK {
		t.Fatalf("POST status = %d, want 200", post.Code)
	}

	var doc map[string]struct {
		Requests int               `json:"requests"`
		Errors   map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(post.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for feed, fd := range doc {
		// Both feeds are fresh inside the fixed clock's schedule, so the
		// forced tick must not issue requests.
		if fd.Requests != 0 {
			t.Errorf("feed %s issued %d requests, want 0", feed, fd.Requests)
		}
		if len(fd.Errors) != 0 {
			t.Errorf("feed %s errors = %v", feed, fd.Errors)
		}
	}
	if len(doc) != 2 {
		t.Errorf("feeds in refresh report = %d, want 2", len(doc))
	}
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}
