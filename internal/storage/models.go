package storage

import "time"

// FeedSnapshot is the durable record for one feed-pair's cached state. Key is
// the feed storage key ("gas", "electricity.60", "electricity.15"); Payload
// holds the serialized coordinator state and is always written whole.
type FeedSnapshot struct {
	Key       string    `json:"key" gorm:"primaryKey;column:key"`
	Payload   []byte    `json:"payload" gorm:"column:payload"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// Setting is a generic key-value setting row, used among others for the
// persisted request counter.
type Setting struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// Token represents an API access token for the HTTP surface.
type Token struct {
	ID         string     `json:"id" gorm:"primaryKey;column:id"`
	Name       string     `json:"name" gorm:"column:name"`
	TokenHash  string     `json:"-" gorm:"column:token_hash"`
	Role       string     `json:"role" gorm:"column:role"`
	CreatedAt  time.Time  `json:"created_at" gorm:"column:created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" gorm:"column:last_used_at"`
}

// ScheduledJob records the outcome of the last run of a background job.
type ScheduledJob struct {
	Name           string    `gorm:"primaryKey;column:name"`
	LastRunAt      time.Time `gorm:"column:last_run_at"`
	LastDurationMs int64     `gorm:"column:last_duration_ms"`
	LastSuccess    int       `gorm:"column:last_success"`
	LastError      string    `gorm:"column:last_error"`
}
