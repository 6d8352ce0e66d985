package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"
)

// Common errors
var (
	ErrNotFound     = errors.New("snapshot not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
)

// StoreConfig is the configuration shared by all store implementations
type StoreConfig struct {
	// Type is the storage backend type
	Type StoreType `json:"type" yaml:"type"`

	// BaseDir is the base directory for file-based storage
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// Redis configuration (only used when Type is "redis")
	Redis RedisStoreConfig `json:"redis" yaml:"redis"`
}

// RedisStoreConfig contains Redis-specific configuration
type RedisStoreConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	PoolSize  int    `json:"pool_size" yaml:"pool_size"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:    StoreTypeMemory,
		BaseDir: "./data/snapshots",
		Redis: RedisStoreConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "panoroam:",
		},
	}
}

// Snapshot is one saved exploration state. Payload is opaque to the store.
type Snapshot struct {
	ID        string            `json:"id"`
	RunID     string            `json:"run_id"`
	StepIndex int               `json:"step_index"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	SavedAt   time.Time         `json:"saved_at"`
}

// Store persists snapshots. Save overwrites an existing snapshot with the
// same ID. List returns snapshots without payloads, newest first.
type Store interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, id string) (*Snapshot, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Snapshot, error)

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error

	// Close closes the store and releases resources
	Close() error
}

// validate checks a snapshot before it is written and stamps SavedAt.
func validate(snap *Snapshot) error {
	if snap == nil || !validID(snap.ID) {
		return ErrInvalidInput
	}
	if len(snap.Payload) > 0 && !json.Valid(snap.Payload) {
		return ErrInvalidInput
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now()
	}
	return nil
}

// validID rejects ids that could escape a directory or a key namespace.
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\:`)
}

// summary drops the payload, for List results.
func summary(s Snapshot) Snapshot {
	s.Payload = nil
	if s.Metadata != nil {
		md := make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			md[k] = v
		}
		s.Metadata = md
	}
	return s
}

func sortNewestFirst(out []Snapshot) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SavedAt.Equal(out[j].SavedAt) {
			return out[i].SavedAt.After(out[j].SavedAt)
		}
		return out[i].ID < out[j].ID
	})
}
