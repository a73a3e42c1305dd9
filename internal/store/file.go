package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spigell/screener/internal/interview"
)

const (
	defaultResultsDir = "results"
	filePrefix        = "session_"
	fileSuffix        = ".json"
)

// FileStore keeps one indented JSON document per session.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir = strings.TrimSpace(dir); dir == "" {
		dir = defaultResultsDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// checkID rejects ids that would escape the results directory once joined into a file name.
func checkID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || filepath.Base(id) != id {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func (f *FileStore) path(id string) string {
	return filepath.Join(f.dir, filePrefix+id+fileSuffix)
}

func (f *FileStore) Create(_ context.Context, id string, profile interview.CandidateProfile, at time.Time) error {
	if err := checkID(id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := os.Stat(f.path(id)); err == nil {
		return fmt.Errorf("session %s already exists", id)
	}
	return f.write(Record{
		ID:        id,
		Profile:   profile.Clone(),
		Status:    interview.StatusCreated,
		Turns:     []interview.Turn{},
		CreatedAt: at,
		UpdatedAt: at,
	})
}

func (f *FileStore) AppendTurn(_ context.Context, id string, turn interview.Turn) error {
	if err := checkID(id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, err := f.read(id)
	if err != nil {
		return fmt.Errorf("append turn to %s: %w", id, err)
	}
	rec.Turns = append(rec.Turns, turn)
	rec.UpdatedAt = turn.Timestamp
	return f.write(rec)
}

func (f *FileStore) Finalize(_ context.Context, id string, outcome interview.Outcome) error {
	if err := checkID(id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, err := f.read(id)
	if err != nil {
		return fmt.Errorf("finalize %s: %w", id, err)
	}
	rec.Status = outcome.Status
	rec.Outcome = &outcome
	rec.UpdatedAt = outcome.EndedAt
	return f.write(rec)
}

func (f *FileStore) Get(_ context.Context, id string) (Record, error) {
	if err := checkID(id); err != nil {
		return Record{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, err := f.read(id)
	if err != nil {
		return Record{}, fmt.Errorf("get %s: %w", id, err)
	}
	return rec, nil
}

func (f *FileStore) List(_ context.Context) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("read results directory %s: %w", f.dir, err)
	}

	out := make([]Record, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		rec, err := f.read(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

func (f *FileStore) Close() error { return nil }

func (f *FileStore) read(id string) (Record, error) {
	data, err := os.ReadFile(f.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("read %s: %w", f.path(id), err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode %s: %w", f.path(id), err)
	}
	if rec.Turns == nil {
		rec.Turns = []interview.Turn{}
	}
	rec.Profile = rec.Profile.Clone()
	return rec, nil
}

// write replaces the document atomically so readers never see a partial file.
func (f *FileStore) write(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", rec.ID, err)
	}

	tmp, err := os.CreateTemp(f.dir, filePrefix+rec.ID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), f.path(rec.ID)); err != nil {
		return fmt.Errorf("replace %s: %w", f.path(rec.ID), err)
	}
	return nil
}
