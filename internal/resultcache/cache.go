package resultcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quailyquaily/taskernetbot/internal/telegram"
)

// Entry is what a chosen inline result needs to patch the message it produced.
type Entry struct {
	Text      string                        `json:"text"`
	ParseMode string                        `json:"parse_mode,omitempty"`
	URL       string                        `json:"url"`
	Keyboard  telegram.InlineKeyboardMarkup `json:"keyboard"`
}

// Store maps inline result ids to entries. Get reports ok=false for unknown
// ids; entries are not removed by reads.
type Store interface {
	Put(ctx context.Context, resultID string, entry Entry) error
	Get(ctx context.Context, resultID string) (Entry, bool, error)
	Close() error
}

const (
	BackendMemory   = "memory"
	BackendLRU      = "lru"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

var ErrEmptyResultID = errors.New("resultcache: empty result id")

type Config struct {
	Backend     string
	LRUSize     int
	LRUTTL      time.Duration
	SQLitePath  string
	PostgresDSN string
}

// Open builds the store selected by cfg.Backend. An empty backend means memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendLRU:
		store, err := NewLRUStore(cfg.LRUSize, cfg.LRUTTL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendSQLite:
		store, err := OpenSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendPostgres:
		store, err := OpenPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown cache.backend: %s", cfg.Backend)
	}
}

func validateResultID(resultID string) error {
	if strings.TrimSpace(resultID) == "" {
		return ErrEmptyResultID
	}
	return nil
}

func encodeKeyboard(kb telegram.InlineKeyboardMarkup) (string, error) {
	if kb.InlineKeyboard == nil {
		kb.InlineKeyboard = [][]telegram.InlineKeyboardButton{}
	}
	b, err := json.Marshal(kb)
	if err != nil {
		return "", fmt.Errorf("resultcache: encode keyboard: %w", err)
	}
	return string(b), nil
}

func decodeKeyboard(raw string) (telegram.InlineKeyboardMarkup, error) {
	var kb telegram.InlineKeyboardMarkup
	if strings.TrimSpace(raw) == "" {
		return kb, nil
	}
	if err := json.Unmarshal([]byte(raw), &kb); err != nil {
		return kb, fmt.Errorf("resultcache: decode keyboard: %w", err)
	}
	return kb, nil
}
