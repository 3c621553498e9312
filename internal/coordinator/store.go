package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MvRens/ha-enever/internal/enever"
	"github.com/MvRens/ha-enever/internal/storage"
)

// Store persists one feed-pair's State through a storage backend. Timestamps
// are serialized as RFC3339 strings and prices as decimal strings, so a
// save/load round-trip reproduces the state exactly.
type Store struct {
	st       storage.Storage
	key      string
	location *time.Location
}

// NewStore creates a Store for the given feed storage key.
func NewStore(st storage.Storage, key string, location *time.Location) *Store {
	if location == nil {
		location = time.Local
	}
	return &Store{st: st, key: key, location: location}
}

// persistedState is the JSON document written to the feed snapshot row.
type persistedState struct {
	Today               []persistedQuote `json:"today"`
	TodayLastRequest    *string          `json:"today_lastrequest"`
	TodayAttempts       int              `json:"today_attempts,omitempty"`
	TodayAttemptDay     string           `json:"today_attempt_day,omitempty"`
	Tomorrow            []persistedQuote `json:"tomorrow"`
	TomorrowLastRequest *string          `json:"tomorrow_lastrequest"`
	TomorrowAttempts    int              `json:"tomorrow_attempts,omitempty"`
	TomorrowAttemptDay  string           `json:"tomorrow_attempt_day,omitempty"`
}

type persistedQuote struct {
	Datum  string                     `json:"datum"`
	Prices map[string]decimal.Decimal `json:"prices"`
}

// Load returns the last saved state, or an empty state when nothing was
// saved yet.
func (s *Store) Load(ctx context.Context) (*State, error) {
	snap, err := s.st.GetFeedSnapshot(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load feed state %q: %w", s.key, err)
	}
	if snap == nil || len(snap.Payload) == 0 {
		return NewState(), nil
	}

	var doc persistedState
	if err := json.Unmarshal(snap.Payload, &doc); err != nil {
		return nil, fmt.Errorf("decode feed state %q: %w", s.key, err)
	}

	state := &State{
		TodayAttempts:      doc.TodayAttempts,
		TodayAttemptDay:    doc.TodayAttemptDay,
		TomorrowAttempts:   doc.TomorrowAttempts,
		TomorrowAttemptDay: doc.TomorrowAttemptDay,
	}
	if state.Today, err = s.batchFromDoc(doc.Today); err != nil {
		return nil, fmt.Errorf("decode feed state %q: %w", s.key, err)
	}
	if state.Tomorrow, err = s.batchFromDoc(doc.Tomorrow); err != nil {
		return nil, fmt.Errorf("decode feed state %q: %w", s.key, err)
	}
	if state.TodayLastRequest, err = s.timeFromDoc(doc.TodayLastRequest); err != nil {
		return nil, fmt.Errorf("decode feed state %q: %w", s.key, err)
	}
	if state.TomorrowLastRequest, err = s.timeFromDoc(doc.TomorrowLastRequest); err != nil {
		return nil, fmt.Errorf("decode feed state %q: %w", s.key, err)
	}
	return state, nil
}

// Save fully overwrites the stored state.
func (s *Store) Save(ctx context.Context, state *State) error {
	doc := persistedState{
		Today:               batchToDoc(state.Today),
		TodayLastRequest:    timeToDoc(state.TodayLastRequest),
		TodayAttempts:       state.TodayAttempts,
		TodayAttemptDay:     state.TodayAttemptDay,
		Tomorrow:            batchToDoc(state.Tomorrow),
		TomorrowLastRequest: timeToDoc(state.TomorrowLastRequest),
		TomorrowAttempts:    state.TomorrowAttempts,
		TomorrowAttemptDay:  state.TomorrowAttemptDay,
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode feed state %q: %w", s.key, err)
	}
	if err := s.st.SaveFeedSnapshot(ctx, storage.FeedSnapshot{Key: s.key, Payload: payload}); err != nil {
		return fmt.Errorf("save feed state %q: %w", s.key, err)
	}
	return nil
}

func (s *Store) batchFromDoc(doc []persistedQuote) (enever.FeedBatch, error) {
	if doc == nil {
		return nil, nil
	}
	batch := make(enever.FeedBatch, 0, len(doc))
	for _, q := range doc {
		ts, err := time.Parse(time.RFC3339Nano, q.Datum)
		if err != nil {
			return nil, fmt.Errorf("invalid datum %q: %w", q.Datum, err)
		}
		prices := q.Prices
		if prices == nil {
			prices = map[string]decimal.Decimal{}
		}
		batch = append(batch, enever.PriceQuote{Time: ts.In(s.location), Prices: prices})
	}
	return batch, nil
}

func batchToDoc(batch enever.FeedBatch) []persistedQuote {
	if batch == nil {
		return nil
	}
	doc := make([]persistedQuote, 0, len(batch))
	for _, q := range batch {
		doc = append(doc, persistedQuote{
			Datum:  q.Time.Format(time.RFC3339Nano),
			Prices: q.Prices,
		})
	}
	return doc
}

func (s *Store) timeFromDoc(value *string) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, *value)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", *value, err)
	}
	local := ts.In(s.location)
	return &local, nil
}

func timeToDoc(value *time.Time) *string {
	if value == nil {
		return nil
	}
	formatted := value.Format(time.RFC3339Nano)
	return &formatted
}
