// mock_store.go - Mock staging store and stub converter for testing
package testutil

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/mdconvert/backend/internal/models"
	"github.com/mdconvert/backend/internal/staging"
)

// MockStore implements staging.Store entirely in memory.
type MockStore struct {
	mu      sync.RWMutex
	files   map[string]*models.StagedFile
	data    map[string][]byte
	results map[string]*models.ConversionResult
	counter int
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		files:   make(map[string]*models.StagedFile),
		data:    make(map[string][]byte),
		results: make(map[string]*models.ConversionResult),
	}
}

func (m *MockStore) Save(name string, r io.Reader) (*models.StagedFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.counter++
	id := fmt.Sprintf("mock-%d", m.counter)
	info := &models.StagedFile{
		ID:           id,
		OriginalName: name,
		SizeBytes:    int64(len(data)),
		StoragePath:  "/mock/" + id,
		CreatedAt:    time.Now(),
		Status:       models.StatusStaged,
	}
	m.files[id] = info
	m.data[id] = data
	return info, nil
}

func (m *MockStore) Get(id string) (*models.StagedFile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.files[id]
	return info, ok
}

func (m *MockStore) List() []*models.StagedFile {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*models.StagedFile, 0, len(m.files))
	for _, info := range m.files {
		list = append(list, info)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

func (m *MockStore) Path(id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.files[id]
	if !ok {
		return "", false
	}
	return info.StoragePath, true
}

func (m *MockStore) SetStatus(id string, status models.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.files[id]; ok {
		info.Status = status
	}
}

func (m *MockStore) SetResult(result *models.ConversionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[result.SourceID]; ok {
		m.results[result.SourceID] = result
	}
}

func (m *MockStore) Result(id string) (*models.ConversionResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.results[id]
	return res, ok
}

func (m *MockStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, id)
	delete(m.data, id)
	delete(m.results, id)
	return nil
}

func (m *MockStore) DeleteAll() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := len(m.files)
	m.files = make(map[string]*models.StagedFile)
	m.data = make(map[string][]byte)
	m.results = make(map[string]*models.ConversionResult)
	return removed, nil
}

// Ensure MockStore implements staging.Store
var _ staging.Store = (*MockStore)(nil)

// Test helper methods

// AddFile adds a staged file directly to the mock.
func (m *MockStore) AddFile(id, name string, data []byte) *models.StagedFile {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := &models.StagedFile{
		ID:           id,
		OriginalName: name,
		SizeBytes:    int64(len(data)),
		StoragePath:  "/mock/" + id,
		CreatedAt:    time.Now(),
		Status:       models.StatusStaged,
	}
	m.files[id] = info
	m.data[id] = data
	return info
}

// FileData returns the stored bytes for a staged file.
func (m *MockStore) FileData(id string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[id]
	return data, ok
}

// FileCount returns the number of staged files.
func (m *MockStore) FileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// StubConverter is a convert.Converter whose behavior is scripted per
// staged path. Paths without a scripted failure succeed with Markdown.
type StubConverter struct {
	mu       sync.Mutex
	Markdown string
	FailWith map[string]error // storage path -> error
	Calls    []string
}

// Convert returns the scripted outcome for the path.
func (s *StubConverter) Convert(_ context.Context, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls = append(s.Calls, path)
	if err, ok := s.FailWith[path]; ok {
		return "", err
	}
	if s.Markdown != "" {
		return s.Markdown, nil
	}
	return "# converted\n\n" + path + "\n", nil
}

// CallCount returns how many conversions were attempted.
func (s *StubConverter) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}
