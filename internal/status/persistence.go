// Package status provides background rebuild status tracking and persistence.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

//go:generate mockgen -destination=mocks/mock_status_persistence.go -package=mocks -source=persistence.go StatusPersistence

// fileSuffix is appended to the index name to form its status file name
const fileSuffix = ".status.json"

// StatusPersistence defines the interface for rebuild status persistence
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveStatus stores the status of an index
	SaveStatus(ctx context.Context, indexName string, status *SyncStatus) error

	// LoadStatus returns the stored status of an index, or an empty
	// SyncStatus when none was saved yet
	LoadStatus(ctx context.Context, indexName string) (*SyncStatus, error)

	// LoadAllStatus returns every stored status keyed by index name
	LoadAllStatus(ctx context.Context) (map[string]*SyncStatus, error)
}

// fileStatusPersistence keeps one JSON file per index in a directory
type fileStatusPersistence struct {
	dir string
}

// NewFileStatusPersistence stores statuses as <dir>/<index>.status.json
func NewFileStatusPersistence(dir string) StatusPersistence {
	return &fileStatusPersistence{dir: dir}
}

func (f *fileStatusPersistence) path(indexName string) (string, error) {
	if indexName == "" || strings.ContainsAny(indexName, `/\`) || strings.HasPrefix(indexName, ".") {
		return "", fmt.Errorf("invalid index name %q", indexName)
	}
	return filepath.Join(f.dir, indexName+fileSuffix), nil
}

// SaveStatus writes the status through a temporary file and a rename, so a
// reader never sees a partial file
func (f *fileStatusPersistence) SaveStatus(_ context.Context, indexName string, status *SyncStatus) error {
	path, err := f.path(indexName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir, 0750); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status of index %s: %w", indexName, err)
	}

	tmp, err := os.CreateTemp(f.dir, "."+indexName+"-*")
	if err != nil {
		return fmt.Errorf("failed to create status file of index %s: %w", indexName, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write status of index %s: %w", indexName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write status of index %s: %w", indexName, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace status of index %s: %w", indexName, err)
	}
	return nil
}

// LoadStatus implements StatusPersistence.LoadStatus
func (f *fileStatusPersistence) LoadStatus(_ context.Context, indexName string) (*SyncStatus, error) {
	path, err := f.path(indexName)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- the index name cannot leave dir
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &SyncStatus{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status of index %s: %w", indexName, err)
	}

	var status SyncStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to decode status of index %s: %w", indexName, err)
	}
	return &status, nil
}

// LoadAllStatus skips files that cannot be decoded
func (f *fileStatusPersistence) LoadAllStatus(ctx context.Context) (map[string]*SyncStatus, error) {
	result := make(map[string]*SyncStatus)

	entries, err := os.ReadDir(f.dir)
	if errors.Is(err, os.ErrNotExist) {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status directory: %w", err)
	}

	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), fileSuffix)
		if entry.IsDir() || !ok {
			continue
		}
		status, err := f.LoadStatus(ctx, name)
		if err != nil {
			continue
		}
		result[name] = status
	}
	return result, nil
}

// memoryStatusPersistence keeps statuses for the lifetime of the process
type memoryStatusPersistence struct {
	statuses *xsync.MapOf[string, SyncStatus]
}

// NewMemoryStatusPersistence keeps statuses in memory only
func NewMemoryStatusPersistence() StatusPersistence {
	return &memoryStatusPersistence{statuses: xsync.NewMapOf[string, SyncStatus]()}
}

func (m *memoryStatusPersistence) SaveStatus(_ context.Context, indexName string, status *SyncStatus) error {
	m.statuses.Store(indexName, *status)
	return nil
}

func (m *memoryStatusPersistence) LoadStatus(_ context.Context, indexName string) (*SyncStatus, error) {
	status, _ := m.statuses.Load(indexName)
	return &status, nil
}

func (m *memoryStatusPersistence) LoadAllStatus(_ context.Context) (map[string]*SyncStatus, error) {
	result := make(map[string]*SyncStatus, m.statuses.Size())
	m.statuses.Range(func(name string, status SyncStatus) bool {
		result[name] = &status
		return true
	})
	return result, nil
}
