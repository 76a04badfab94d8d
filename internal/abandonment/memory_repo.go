package abandonment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryLogRepo is the in-process LogRepo used by the single-owner
// deployment and by tests. The byReference index makes the at-most-one
// invariant structural: CreateIfAbsent is a map insert, not a scan.
type MemoryLogRepo struct {
	mu          sync.Mutex
	byID        map[string]*Log
	byReference map[string]string // reference id -> log id
	nowFunc     func() time.Time
}

// NewMemoryLogRepo creates an empty repository.
func NewMemoryLogRepo() *MemoryLogRepo {
	return &MemoryLogRepo{
		byID:        map[string]*Log{},
		byReference: map[string]string{},
		nowFunc:     time.Now,
	}
}

// CreateIfAbsent implements LogRepo.
func (r *MemoryLogRepo) CreateIfAbsent(_ context.Context, log Log) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byReference[log.ReferenceID]; exists {
		return false, nil
	}
	now := r.nowFunc()
	log.CreatedAt = now
	log.UpdatedAt = now
	if log.Recovery == "" {
		log.Recovery = RecoveryPending
	}
	stored := log
	r.byID[log.ID] = &stored
	r.byReference[log.ReferenceID] = log.ID
	return true, nil
}

// Get implements LogRepo.
func (r *MemoryLogRepo) Get(_ context.Context, logID string) (*Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	log, ok := r.byID[logID]
	if !ok {
		return nil, nil
	}
	out := *log
	return &out, nil
}

// FindByReference implements LogRepo.
func (r *MemoryLogRepo) FindByReference(_ context.Context, referenceID string) (*Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byReference[referenceID]
	if !ok {
		return nil, nil
	}
	out := *r.byID[id]
	return &out, nil
}

// Update implements LogRepo.
func (r *MemoryLogRepo) Update(_ context.Context, logID string, patch Patch) (*Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	log, ok := r.byID[logID]
	if !ok {
		return nil, fmt.Errorf("update log %s: not found", logID)
	}
	if patch.Recovery != nil {
		log.Recovery = *patch.Recovery
	}
	if patch.Notes != nil {
		log.Notes = *patch.Notes
	}
	log.UpdatedAt = r.nowFunc()
	out := *log
	return &out, nil
}

// Query implements LogRepo.
func (r *MemoryLogRepo) Query(_ context.Context, filter Filter) ([]Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Log
	for _, log := range r.byID {
		if filter.Matches(*log) {
			out = append(out, *log)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AbandonedAt.After(out[j].AbandonedAt) })
	return out, nil
}
