package storage

import (
	"context"
	"time"
)

// Storage abstracts persistence for cached feed state, settings, API tokens
// and job bookkeeping.
type Storage interface {
	// Feed snapshots
	GetFeedSnapshot(ctx context.Context, key string) (*FeedSnapshot, error)
	SaveFeedSnapshot(ctx context.Context, snap FeedSnapshot) error

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// API tokens for the HTTP surface
	CreateToken(ctx context.Context, token Token) error
	GetTokenByHash(ctx context.Context, hash string) (*Token, error)
	ListTokens(ctx context.Context) ([]Token, error)
	DeleteToken(ctx context.Context, id string) error
	UpdateTokenLastUsed(ctx context.Context, id string) error

	// Job bookkeeping
	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
