// Package store persists interview sessions and their outcomes.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spigell/screener/internal/interview"
)

var ErrNotFound = errors.New("session record not found")

// ErrInvalidID is returned for ids that cannot name a stored record.
var ErrInvalidID = errors.New("invalid session id")

// Record is the persisted view of a session.
type Record struct {
	ID        string                     `json:"id"`
	Profile   interview.CandidateProfile `json:"profile"`
	Status    interview.Status           `json:"status"`
	Turns     []interview.Turn           `json:"turns"`
	Outcome   *interview.Outcome         `json:"outcome,omitempty"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

// Finalized reports whether an outcome has been written.
func (r Record) Finalized() bool {
	return r.Outcome != nil
}

func (r Record) clone() Record {
	out := r
	out.Profile = r.Profile.Clone()
	out.Turns = slices.Clone(r.Turns)
	if out.Turns == nil {
		out.Turns = []interview.Turn{}
	}
	if r.Outcome != nil {
		outcome := *r.Outcome
		if r.Outcome.Report != nil {
			report := *r.Outcome.Report
			outcome.Report = &report
		}
		outcome.Events = slices.Clone(r.Outcome.Events)
		out.Outcome = &outcome
	}
	return out
}

// Store is safe for concurrent use. Writes for one id are issued by a single
// session at a time.
type Store interface {
	Create(ctx context.Context, id string, profile interview.CandidateProfile, at time.Time) error
	AppendTurn(ctx context.Context, id string, turn interview.Turn) error
	Finalize(ctx context.Context, id string, outcome interview.Outcome) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// Config selects the backend.
type Config struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Open builds the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverFile:
		return NewFileStore(cfg.Path)
	case DriverSQLite:
		return NewSQLiteStore(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func sortRecords(records []Record) {
	slices.SortFunc(records, func(a, b Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
