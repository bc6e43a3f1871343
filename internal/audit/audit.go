package audit

import (
	"context"
	"sync"

	"github.com/mcoot/chaosroom/internal/model"
)

// Recorder persists staff actions
type Recorder interface {
	Record(ctx context.Context, entry model.AuditEntry) error
	ListForTarget(ctx context.Context, target model.PlayerID, limit int) ([]model.AuditEntry, error)
	Close() error
}

// MemoryRecorder keeps entries in process, used when no database is configured
type MemoryRecorder struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

// NewMemoryRecorder creates an empty in-memory recorder
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Record(ctx context.Context, entry model.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// ListForTarget returns the newest entries first
func (r *MemoryRecorder) ListForTarget(ctx context.Context, target model.PlayerID, limit int) ([]model.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.AuditEntry, 0)
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].TargetID != target {
			continue
		}
		out = append(out, r.entries[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRecorder) Close() error {
	return nil
}
