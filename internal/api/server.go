package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/MvRens/ha-enever/internal/api/swagger"
	"github.com/MvRens/ha-enever/internal/auth"
	"github.com/MvRens/ha-enever/internal/coordinator"
	"github.com/MvRens/ha-enever/internal/enever"
	"github.com/MvRens/ha-enever/internal/metrics"
	"github.com/MvRens/ha-enever/internal/sensor"
	"github.com/MvRens/ha-enever/internal/storage"
)

// Deps wires the HTTP surface to the rest of the application.
type Deps struct {
	// Coordinators by storage key ("gas", "electricity.60", ...).
	Coordinators map[string]*coordinator.Coordinator

	// Counter is the monthly request counter, nil when disabled.
	Counter *sensor.RequestCounter

	Storage  storage.Storage
	Auth     *auth.Service
	Clock    coordinator.Clock
	Location *time.Location
	Log      *logrus.Entry

	// AuthRequired protects the price and status endpoints with Bearer
	// tokens when true.
	AuthRequired bool
}

// Server serves the HTTP API.
type Server struct {
	deps Deps

	mu         sync.Mutex
	gasSensors map[string]*sensor.GasSensor
}

// NewServer builds the HTTP server facade.
func NewServer(deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = coordinator.RealClock()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	return &Server{
		deps:       deps,
		gasSensors: make(map[string]*sensor.GasSensor),
	}
}

// NewMux constructs the HTTP mux with price, status, docs, metrics, and
// health endpoints.
func (s *Server) NewMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.deps.Storage.Ping(r.Context()); err != nil {
			s.deps.Log.WithError(err).Warn("readyz: storage ping failed")
			http.Error(w, "storage not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})

	mux.Handle("/prices/", s.protect("prices", "read", s.instrument("prices", http.HandlerFunc(s.handlePrices))))
	mux.Handle("/status", s.protect("status", "read", s.instrument("status", http.HandlerFunc(s.handleStatus))))
	mux.Handle("/refresh", s.protect("refresh", "write", s.instrument("refresh", http.HandlerFunc(s.handleRefresh))))
	mux.Handle("/providers", s.instrument("providers", http.HandlerFunc(s.handleProviders)))

	mux.Handle("/docs/", http.StripPrefix("/docs", swagger.Handler()))

	return mux
}

// protect wraps a handler with token authentication when enabled.
func (s *Server) protect(obj, act string, next http.Handler) http.Handler {
	if !s.deps.AuthRequired || s.deps.Auth == nil {
		return next
	}
	return s.deps.Auth.Middleware(s.deps.Auth.RequirePermission(obj, act, next))
}

// instrument records request count and latency metrics per handler.
func (s *Server) instrument(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.HTTPRequestsTotal.WithLabelValues(handler, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(handler).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// quoteDoc is one price interval in API responses. Prices are rendered as
// decimal strings to avoid float rounding.
type quoteDoc struct {
	Time   time.Time                  `json:"time"`
	Prices map[string]decimal.Decimal `json:"prices"`
}

type feedDoc struct {
	Feed                string     `json:"feed"`
	Today               []quoteDoc `json:"today"`
	TodayLastRequest    *time.Time `json:"today_lastrequest"`
	Tomorrow            []quoteDoc `json:"tomorrow,omitempty"`
	TomorrowLastRequest *time.Time `json:"tomorrow_lastrequest,omitempty"`
}

type providerDoc struct {
	Feed     string            `json:"feed"`
	Provider string            `json:"provider"`
	Name     string            `json:"name"`
	Current  *decimal.Decimal  `json:"current"`
	Today    []pricePointDoc   `json:"today,omitempty"`
	Tomorrow []pricePointDoc   `json:"tomorrow,omitempty"`
	Averages map[string]string `json:"averages,omitempty"`
}

type pricePointDoc struct {
	Time  time.Time       `json:"time"`
	Price decimal.Decimal `json:"price"`
}

// handlePrices serves /prices/{feed} and /prices/{feed}/{provider}. The
// feed segment is "gas", "electricity" (the configured resolution) or an
// explicit "electricity.60" / "electricity.15".
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/prices"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	coord := s.lookupCoordinator(parts[0])
	if coord == nil {
		http.NotFound(w, r)
		return
	}

	switch len(parts) {
	case 1:
		s.writeFeed(w, coord)
	case 2:
		s.writeProvider(w, coord, parts[1])
	default:
		http.NotFound(w, r)
	}
}

// lookupCoordinator resolves a feed path segment, accepting "electricity"
// as an alias for whichever resolution is configured.
func (s *Server) lookupCoordinator(feed string) *coordinator.Coordinator {
	if c, ok := s.deps.Coordinators[feed]; ok {
		return c
	}
	if feed == "electricity" {
		for _, key := range []string{"electricity.60", "electricity.15"} {
			if c, ok := s.deps.Coordinators[key]; ok {
				return c
			}
		}
	}
	return nil
}

func (s *Server) writeFeed(w http.ResponseWriter, coord *coordinator.Coordinator) {
	state := coord.Current()
	doc := feedDoc{
		Feed:                coord.Feed().StorageKey(),
		Today:               quotesToDoc(state.Today),
		TodayLastRequest:    state.TodayLastRequest,
		Tomorrow:            quotesToDoc(state.Tomorrow),
		TomorrowLastRequest: state.TomorrowLastRequest,
	}
	writeJSON(w, s.deps.Log, doc)
}

func (s *Server) writeProvider(w http.ResponseWriter, coord *coordinator.Coordinator, provider string) {
	key := coord.Feed().StorageKey()
	state := coord.Current()
	now := s.deps.Clock.Now()

	doc := providerDoc{
		Feed:     key,
		Provider: provider,
		Name:     enever.DisplayName(provider),
	}

	if key == "gas" {
		if !enever.SupportsGas(provider) {
			http.Error(w, "provider does not publish gas prices", http.StatusNotFound)
			return
		}
		doc.Current = s.gasSensor(provider).Value(now, state)
	} else {
		if !enever.SupportsElectricity(provider) {
			http.Error(w, "provider does not publish electricity prices", http.StatusNotFound)
			return
		}
		resolution := strings.TrimPrefix(key, "electricity.")
		es := sensor.NewElectricitySensor(provider, resolution, s.deps.Location)
		doc.Current = es.Current(now, state)
		doc.Today = pointsToDoc(es.TodayPrices(now, state))
		doc.Tomorrow = pointsToDoc(es.TomorrowPrices(state))

		doc.Averages = map[string]string{}
		if avg := es.TodayAverage(now, state); avg != nil {
			doc.Averages["today"] = avg.String()
		}
		if avg := es.TomorrowAverage(state); avg != nil {
			doc.Averages["tomorrow"] = avg.String()
		}
	}

	writeJSON(w, s.deps.Log, doc)
}

// gasSensor returns the stateful gas sensor for a provider, creating it on
// first use. Sensors are cached so the negative-price guard keeps its
// previous value across requests.
func (s *Server) gasSensor(provider string) *sensor.GasSensor {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, ok := s.gasSensors[provider]
	if !ok {
		gs = sensor.NewGasSensor(provider)
		s.gasSensors[provider] = gs
	}
	return gs
}

type feedStatusDoc struct {
	TodayQuotes         int        `json:"today_quotes"`
	TodayLastRequest    *time.Time `json:"today_lastrequest"`
	TomorrowQuotes      int        `json:"tomorrow_quotes"`
	TomorrowLastRequest *time.Time `json:"tomorrow_lastrequest"`
	NextTickIn          string     `json:"next_tick_in"`
}

type statusDoc struct {
	Feeds        map[string]feedStatusDoc `json:"feeds"`
	RequestCount *int                     `json:"request_count,omitempty"`
	RequestQuota *int                     `json:"request_quota,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	doc := statusDoc{Feeds: make(map[string]feedStatusDoc)}

	for key, coord := range s.deps.Coordinators {
		state := coord.Current()
		doc.Feeds[key] = feedStatusDoc{
			TodayQuotes:         len(state.Today),
			TodayLastRequest:    state.TodayLastRequest,
			TomorrowQuotes:      len(state.Tomorrow),
			TomorrowLastRequest: state.TomorrowLastRequest,
			NextTickIn:          coord.Interval().String(),
		}
	}

	if s.deps.Counter != nil {
		count := s.deps.Counter.Value()
		quota := s.deps.Counter.Quota()
		doc.RequestCount = &count
		doc.RequestQuota = &quota
	}

	writeJSON(w, s.deps.Log, doc)
}

type refreshFeedDoc struct {
	Requests int               `json:"requests"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// handleRefresh forces an immediate tick evaluation on every coordinator.
// Freshness, throttle and daily-attempt rules still apply, so a refresh on
// up-to-date feeds issues no requests.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	doc := make(map[string]refreshFeedDoc, len(s.deps.Coordinators))
	for key, coord := range s.deps.Coordinators {
		report, err := coord.Tick(r.Context())
		fd := refreshFeedDoc{Requests: report.Requests}
		if err != nil {
			fd.Errors = map[string]string{"tick": err.Error()}
		} else if report.Failed() {
			fd.Errors = map[string]string{}
			if report.TodayErr != nil {
				fd.Errors["today"] = report.TodayErr.Error()
			}
			if report.TomorrowErr != nil {
				fd.Errors["tomorrow"] = report.TomorrowErr.Error()
			}
		}
		doc[key] = fd
	}

	writeJSON(w, s.deps.Log, doc)
}

type providerListDoc struct {
	Electricity []providerEntryDoc `json:"electricity"`
	Gas         []providerEntryDoc `json:"gas"`
}

type providerEntryDoc struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	doc := providerListDoc{}
	for _, code := range enever.ElectricityProviders() {
		doc.Electricity = append(doc.Electricity, providerEntryDoc{Code: code, Name: enever.DisplayName(code)})
	}
	for _, code := range enever.GasProviders() {
		doc.Gas = append(doc.Gas, providerEntryDoc{Code: code, Name: enever.DisplayName(code)})
	}
	writeJSON(w, s.deps.Log, doc)
}

func quotesToDoc(batch enever.FeedBatch) []quoteDoc {
	if batch == nil {
		return nil
	}
	out := make([]quoteDoc, 0, len(batch))
	for _, q := range batch {
		out = append(out, quoteDoc{Time: q.Time, Prices: q.Prices})
	}
	return out
}

func pointsToDoc(points []sensor.PricePoint) []pricePointDoc {
	out := make([]pricePointDoc, 0, len(points))
	for _, p := range points {
		out = append(out, pricePointDoc{Time: p.Time, Price: p.Price})
	}
	return out
}

func writeJSON(w http.ResponseWriter, log *logrus.Entry, doc interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		log.WithError(err).Warn("encode response failed")
	}
}
