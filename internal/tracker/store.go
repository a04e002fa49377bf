package tracker

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/Badsworth/pfml-scripts-sub007/internal/cache"
	"github.com/Badsworth/pfml-scripts-sub007/internal/config"
	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
)

// Store persists tracker entries. Put must not return until the entry is
// durable.
type Store interface {
	cache.Backing
	All(ctx context.Context) ([]model.TrackerEntry, error)
	Close() error
}

// Open creates the store selected by cfg
func Open(ctx context.Context, cfg config.TrackerConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "file", "":
		return NewFileStore(cfg.Path)

	case "sqlite":
		st, err := NewSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil

	case "redis":
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPrefix)

	default:
		return nil, eris.Errorf("unknown tracker driver: %s (supported: file, sqlite, redis)", cfg.Driver)
	}
}

// StatusCounts tallies entries by status
type StatusCounts struct {
	Submitted         int `json:"submitted" yaml:"submitted"`
	PostProcessFailed int `json:"post_process_failed" yaml:"post_process_failed"`
	Failed            int `json:"failed" yaml:"failed"`
}

// Total returns the number of tracked claims
func (c StatusCounts) Total() int {
	return c.Submitted + c.PostProcessFailed + c.Failed
}

// Summarize counts entries per status
func Summarize(entries []model.TrackerEntry) StatusCounts {
	var c StatusCounts
	for _, e := range entries {
		switch e.Status {
		case model.StatusSubmitted:
			c.Submitted++
		case model.StatusPostProcessFailed:
			c.PostProcessFailed++
		default:
			c.Failed++
		}
	}
	return c
}

func sortEntries(entries []model.TrackerEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
}
