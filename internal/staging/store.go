package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mdconvert/backend/internal/models"
)

// Store holds the process-wide set of staged files and their conversion
// results. It is injected into the intake manager, the API layer and the
// retention sweeper so each can be tested against a fake.
type Store interface {
	Save(name string, r io.Reader) (*models.StagedFile, error)
	Get(id string) (*models.StagedFile, bool)
	List() []*models.StagedFile
	Path(id string) (string, bool)
	SetStatus(id string, status models.Status)
	SetResult(result *models.ConversionResult)
	Result(id string) (*models.ConversionResult, bool)
	// Delete removes the staged file, its on-disk bytes and its result.
	// Deleting an identifier that is already gone is a no-op, not an error.
	Delete(id string) error
	// DeleteAll removes every staged file and returns how many were removed.
	DeleteAll() (int, error)
}

// LocalStore implements Store using the local filesystem for file bytes
// and an in-memory map for metadata.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	files     map[string]*models.StagedFile
	results   map[string]*models.ConversionResult
}

// NewLocalStore creates a LocalStore rooted at uploadDir, creating the
// directory if needed.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	return &LocalStore{
		uploadDir: uploadDir,
		files:     make(map[string]*models.StagedFile),
		results:   make(map[string]*models.ConversionResult),
	}, nil
}

// Save persists the byte stream under a unique identifier derived from the
// declared filename. A collision with a currently staged file is resolved
// by appending a counter before the extension.
func (s *LocalStore) Save(name string, r io.Reader) (*models.StagedFile, error) {
	s.mu.Lock()
	id := s.uniqueID(name)
	path := filepath.Join(s.uploadDir, id)
	// Reserve the identifier before releasing the lock so concurrent saves
	// of the same name cannot race on it.
	s.files[id] = nil
	s.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		s.release(id)
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		s.release(id)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	info := &models.StagedFile{
		ID:           id,
		OriginalName: name,
		SizeBytes:    size,
		StoragePath:  path,
		CreatedAt:    time.Now(),
		Status:       models.StatusStaged,
	}

	s.mu.Lock()
	s.files[id] = info
	s.mu.Unlock()

	return info, nil
}

// uniqueID sanitizes the original name and disambiguates against currently
// staged identifiers. Caller must hold s.mu.
func (s *LocalStore) uniqueID(name string) string {
	base := sanitizeName(name)
	if _, taken := s.files[base]; !taken {
		return base
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if _, taken := s.files[candidate]; !taken {
			return candidate
		}
	}
}

func (s *LocalStore) release(id string) {
	s.mu.Lock()
	delete(s.files, id)
	s.mu.Unlock()
}

// sanitizeName reduces a declared filename to a safe on-disk identifier.
func sanitizeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, base)
	mapped = strings.Trim(mapped, ".-")
	if mapped == "" {
		return "file"
	}
	return mapped
}

// Get retrieves staged file metadata by identifier.
func (s *LocalStore) Get(id string) (*models.StagedFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok || info == nil {
		return nil, false
	}
	return info, true
}

// List returns all staged files, most recently staged first.
func (s *LocalStore) List() []*models.StagedFile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.StagedFile, 0, len(s.files))
	for _, info := range s.files {
		if info != nil {
			list = append(list, info)
		}
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})

	return list
}

// Path returns the on-disk location of a staged file.
func (s *LocalStore) Path(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok || info == nil {
		return "", false
	}
	return info.StoragePath, true
}

// SetStatus updates the lifecycle status of a staged file.
func (s *LocalStore) SetStatus(id string, status models.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info, ok := s.files[id]; ok && info != nil {
		info.Status = status
	}
}

// SetResult attaches a conversion result to its source staged file.
func (s *LocalStore) SetResult(result *models.ConversionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info, ok := s.files[result.SourceID]; ok && info != nil {
		s.results[result.SourceID] = result
	}
}

// Result returns the conversion result for a staged file, if one exists.
func (s *LocalStore) Result(id string) (*models.ConversionResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.results[id]
	return res, ok
}

// Delete removes a staged file, its bytes and its result. It is idempotent.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteLocked(id)
}

func (s *LocalStore) deleteLocked(id string) error {
	info, ok := s.files[id]
	if !ok || info == nil {
		return nil
	}

	if err := os.Remove(info.StoragePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	delete(s.results, id)
	return nil
}

// DeleteAll removes every staged file and result immediately.
func (s *LocalStore) DeleteAll() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, info := range s.files {
		if info == nil {
			continue // save in flight, not yet visible
		}
		if err := s.deleteLocked(id); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
