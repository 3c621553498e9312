package coordinator

import (
	"time"

	"github.com/MvRens/ha-enever/internal/enever"
)

// attemptDayLayout tags attempt counters with the civil date they apply to.
const attemptDayLayout = "2006-01-02"

// State is the cached state of one feed-pair. Values are treated as
// copy-on-write: a tick derives a new State from the previous one and never
// mutates a State that has already been returned, so a failed tick can never
// leave a half-updated value behind. Batches are never modified in place.
type State struct {
	Today            enever.FeedBatch
	TodayLastRequest *time.Time
	TodayAttempts    int
	TodayAttemptDay  string

	Tomorrow            enever.FeedBatch
	TomorrowLastRequest *time.Time
	TomorrowAttempts    int
	TomorrowAttemptDay  string
}

// NewState returns the empty state used on a first-ever run.
func NewState() *State {
	return &State{}
}

// Clone returns a copy safe to update during a tick. Batches and timestamps
// are shared, not copied: they are only ever replaced wholesale, never
// mutated through the copy.
func (s *State) Clone() *State {
	cp := *s
	return &cp
}
