package repository

import (
	"context"
	"sync"
	"time"

	"maidlink/internal/models"
)

type MemoryStateRepository struct {
	checks sync.Map

	mu         sync.Mutex
	rateLimits map[string]*rateLimitEntry
	now        func() time.Time
}

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{
		rateLimits: make(map[string]*rateLimitEntry),
		now:        time.Now,
	}
}

func (r *MemoryStateRepository) SaveCheck(_ context.Context, rec *models.CheckRecord) error {
	cp := *rec
	r.checks.Store(rec.CheckID, &cp)
	return nil
}

func (r *MemoryStateRepository) GetCheck(_ context.Context, checkID string) (*models.CheckRecord, error) {
	val, ok := r.checks.Load(checkID)
	if !ok {
		return nil, nil
	}
	cp := *val.(*models.CheckRecord)
	return &cp, nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryStateRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++

	return entry.count <= limit, nil
}
