package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oshokin/parking-monitor/internal/config"
	"github.com/oshokin/parking-monitor/internal/domain/parking"
)

// Repository defines persistence operations for report records.
type Repository interface {
	Load(ctx context.Context) (*parking.ReportRecord, error)
	Save(ctx context.Context, record *parking.ReportRecord) error
}

// FileRepository persists the latest report record to a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of the JSON state file.
	path string
	// mu protects concurrent access to the state file.
	mu sync.Mutex
}

// ErrNotFound is returned when the state file does not exist yet.
var ErrNotFound = errors.New("state not found")

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the location of the state file.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the last record from disk.
func (r *FileRepository) Load(_ context.Context) (*parking.ReportRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read state file: %w", err)
	}

	record := new(parking.ReportRecord)
	if err = json.Unmarshal(contents, record); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}

	return record, nil
}

// Save replaces the stored record. The file is written next to its final
// location and renamed, so readers never observe a partial document.
func (r *FileRepository) Save(_ context.Context, record *parking.ReportRecord) error {
	if record == nil {
		return errors.New("nil report record")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if dir := filepath.Dir(r.path); dir != "." {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}

	tmp := r.path + ".tmp"
	if err = os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	if err = os.Rename(tmp, r.path); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}
