// manager_test.go - Tests for intake validation and staging
package intake

import (
	"errors"
	"strings"
	"testing"

	"github.com/mdconvert/backend/internal/testutil"
)

const testMaxBytes = 1024 // 1 KB cap keeps fixtures small

func TestManager_Stage(t *testing.T) {
	t.Run("stages a valid file", func(t *testing.T) {
		store := testutil.NewMockStore()
		mgr := NewManager(store, testMaxBytes)

		content := "hello world"
		info, err := mgr.Stage("doc.txt", int64(len(content)), strings.NewReader(content))
		if err != nil {
			t.Fatalf("Stage failed: %v", err)
		}

		if info.OriginalName != "doc.txt" {
			t.Errorf("Expected name 'doc.txt', got %v", info.OriginalName)
		}
		if info.SizeBytes != int64(len(content)) {
			t.Errorf("Expected size %d, got %d", len(content), info.SizeBytes)
		}
		if store.FileCount() != 1 {
			t.Errorf("Expected 1 staged file, got %d", store.FileCount())
		}

		data, ok := store.FileData(info.ID)
		if !ok || string(data) != content {
			t.Errorf("Expected stored bytes %q, got %q (ok=%v)", content, string(data), ok)
		}
	})

	t.Run("rejects empty declared size", func(t *testing.T) {
		store := testutil.NewMockStore()
		mgr := NewManager(store, testMaxBytes)

		_, err := mgr.Stage("empty.txt", 0, strings.NewReader(""))

		var emptyErr *EmptyError
		if !errors.As(err, &emptyErr) {
			t.Fatalf("Expected EmptyError, got %v", err)
		}
		if emptyErr.Name != "empty.txt" {
			t.Errorf("Expected error to name the file, got %v", emptyErr.Name)
		}
		if store.FileCount() != 0 {
			t.Errorf("Expected nothing staged, got %d files", store.FileCount())
		}
	})

	t.Run("rejects oversized declared size", func(t *testing.T) {
		store := testutil.NewMockStore()
		mgr := NewManager(store, testMaxBytes)

		_, err := mgr.Stage("big.bin", testMaxBytes+1, strings.NewReader("irrelevant"))

		var oversizedErr *OversizedError
		if !errors.As(err, &oversizedErr) {
			t.Fatalf("Expected OversizedError, got %v", err)
		}
		if oversizedErr.SizeBytes != testMaxBytes+1 {
			t.Errorf("Expected reported size %d, got %d", testMaxBytes+1, oversizedErr.SizeBytes)
		}
		if oversizedErr.MaxBytes != testMaxBytes {
			t.Errorf("Expected reported cap %d, got %d", testMaxBytes, oversizedErr.MaxBytes)
		}
		if store.FileCount() != 0 {
			t.Errorf("Expected nothing staged, got %d files", store.FileCount())
		}
	})

	t.Run("accepts file exactly at the cap", func(t *testing.T) {
		store := testutil.NewMockStore()
		mgr := NewManager(store, testMaxBytes)

		content := strings.Repeat("x", testMaxBytes)
		info, err := mgr.Stage("exact.bin", testMaxBytes, strings.NewReader(content))
		if err != nil {
			t.Fatalf("Stage failed: %v", err)
		}
		if info.SizeBytes != testMaxBytes {
			t.Errorf("Expected size %d, got %d", testMaxBytes, info.SizeBytes)
		}
	})

	t.Run("rejects stream larger than declared size", func(t *testing.T) {
		store := testutil.NewMockStore()
		mgr := NewManager(store, testMaxBytes)

		// Declared size fits; actual stream exceeds the cap
		content := strings.Repeat("x", testMaxBytes+100)
		_, err := mgr.Stage("liar.bin", 10, strings.NewReader(content))

		var oversizedErr *OversizedError
		if !errors.As(err, &oversizedErr) {
			t.Fatalf("Expected OversizedError, got %v", err)
		}
		if store.FileCount() != 0 {
			t.Errorf("Expected staged file to be removed, got %d files", store.FileCount())
		}
	})

	t.Run("rejects stream that turns out empty", func(t *testing.T) {
		store := testutil.NewMockStore()
		mgr := NewManager(store, testMaxBytes)

		_, err := mgr.Stage("hollow.txt", 42, strings.NewReader(""))

		var emptyErr *EmptyError
		if !errors.As(err, &emptyErr) {
			t.Fatalf("Expected EmptyError, got %v", err)
		}
		if store.FileCount() != 0 {
			t.Errorf("Expected staged file to be removed, got %d files", store.FileCount())
		}
	})
}

func TestManager_MaxBytes(t *testing.T) {
	mgr := NewManager(testutil.NewMockStore(), testMaxBytes)
	if mgr.MaxBytes() != testMaxBytes {
		t.Errorf("Expected cap %d, got %d", testMaxBytes, mgr.MaxBytes())
	}
}

func TestErrorMessages(t *testing.T) {
	empty := &EmptyError{Name: "a.txt"}
	if !strings.Contains(empty.Error(), "a.txt") {
		t.Errorf("Expected empty error to name the file, got %q", empty.Error())
	}

	oversized := &OversizedError{Name: "b.bin", SizeBytes: 60 * 1024 * 1024, MaxBytes: 50 * 1024 * 1024}
	msg := oversized.Error()
	if !strings.Contains(msg, "50 MB") || !strings.Contains(msg, "60.0 MB") {
		t.Errorf("Expected message to show both sizes, got %q", msg)
	}
}
