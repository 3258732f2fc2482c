// Package intake validates and stages uploaded byte streams.
package intake

import (
	"fmt"
	"io"
	"log"

	"github.com/mdconvert/backend/internal/models"
	"github.com/mdconvert/backend/internal/staging"
)

// EmptyError reports a zero-byte upload. Nothing is staged.
type EmptyError struct {
	Name string
}

func (e *EmptyError) Error() string {
	return fmt.Sprintf("file %q is empty", e.Name)
}

// OversizedError reports an upload larger than the configured cap.
// Nothing is staged and the file never reaches the dispatcher.
type OversizedError struct {
	Name      string
	SizeBytes int64
	MaxBytes  int64
}

func (e *OversizedError) Error() string {
	return fmt.Sprintf("file %q exceeds size limit of %.0f MB (yours is %.1f MB)",
		e.Name, float64(e.MaxBytes)/(1024*1024), float64(e.SizeBytes)/(1024*1024))
}

// Manager accepts uploaded byte streams, validates them and hands them to
// the staging store. No conversion or parsing happens here.
type Manager struct {
	store    staging.Store
	maxBytes int64
}

// NewManager creates an intake manager with the given size cap in bytes.
func NewManager(store staging.Store, maxBytes int64) *Manager {
	return &Manager{store: store, maxBytes: maxBytes}
}

// MaxBytes returns the configured upload size cap.
func (m *Manager) MaxBytes() int64 {
	return m.maxBytes
}

// Stage validates the declared size, persists the stream and returns the
// staged file. The declared size is re-checked against the bytes actually
// written, so a lying client cannot slip an oversized payload past intake.
func (m *Manager) Stage(name string, declaredSize int64, r io.Reader) (*models.StagedFile, error) {
	if declaredSize <= 0 {
		return nil, &EmptyError{Name: name}
	}
	if declaredSize > m.maxBytes {
		return nil, &OversizedError{Name: name, SizeBytes: declaredSize, MaxBytes: m.maxBytes}
	}
	if declaredSize > m.maxBytes*7/10 {
		log.Printf("[Intake] large file %q (%.1f MB), conversion may take longer",
			name, float64(declaredSize)/(1024*1024))
	}

	// Cap the read so an understated Content-Length cannot fill the disk.
	info, err := m.store.Save(name, io.LimitReader(r, m.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("staging %q: %w", name, err)
	}

	if info.SizeBytes == 0 {
		_ = m.store.Delete(info.ID)
		return nil, &EmptyError{Name: name}
	}
	if info.SizeBytes > m.maxBytes {
		_ = m.store.Delete(info.ID)
		return nil, &OversizedError{Name: name, SizeBytes: info.SizeBytes, MaxBytes: m.maxBytes}
	}

	log.Printf("[Intake] staged %q as %s (%d bytes)", name, info.ID, info.SizeBytes)
	return info, nil
}
