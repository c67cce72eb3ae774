package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResponseRecorderTracksStatusAndBytes(t *testing.T) {
	rec := NewResponseRecorder(httptest.NewRecorder())

	rec.WriteHeader(http.StatusConflict)
	if _, err := rec.Write([]byte("busy")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if rec.Status() != http.StatusConflict {
		t.Fatalf("Status() = %d, want %d", rec.Status(), http.StatusConflict)
	}
	if rec.BytesWritten() != 4 {
		t.Fatalf("BytesWritten() = %d, want 4", rec.BytesWritten())
	}
}

func TestResponseRecorderDefaultsToOK(t *testing.T) {
	rec := NewResponseRecorder(httptest.NewRecorder())
	if _, err := rec.Write([]byte("ok")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if rec.Status() != http.StatusOK {
		t.Fatalf("Status() = %d, want 200", rec.Status())
	}
}

func TestResponseRecorderFlushPassesThrough(t *testing.T) {
	base := httptest.NewRecorder()
	rec := NewResponseRecorder(base)
	rec.Flush()
	if !base.Flushed {
		t.Fatalf("expected flush to reach the underlying writer")
	}
}
