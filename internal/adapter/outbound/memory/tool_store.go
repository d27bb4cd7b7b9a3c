package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/catalog"
)

// MemoryToolStore implements catalog.ToolStore with an in-memory map.
// Thread-safe for concurrent access via sync.RWMutex.
// Returns deep copies to prevent external mutation of stored data.
type MemoryToolStore struct {
	tools  map[int64]*catalog.ToolRecord
	nextID int64
	now    func() time.Time
	mu     sync.RWMutex
}

// NewToolStore creates a new in-memory tool store.
func NewToolStore() *MemoryToolStore {
	return &MemoryToolStore{
		tools:  make(map[int64]*catalog.ToolRecord),
		nextID: 1,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// List returns tools ordered by ID as deep copies.
func (s *MemoryToolStore) List(ctx context.Context, enabledOnly bool) ([]catalog.ToolRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]catalog.ToolRecord, 0, len(s.tools))
	for _, r := range s.tools {
		if enabledOnly && !r.Enabled {
			continue
		}
		result = append(result, *r.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Get returns a single tool by ID as a deep copy.
// Returns ErrToolNotFound if the tool does not exist.
func (s *MemoryToolStore) Get(ctx context.Context, id int64) (*catalog.ToolRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.tools[id]
	if !ok {
		return nil, catalog.ErrToolNotFound
	}
	return r.Clone(), nil
}

// GetByName returns a single tool by name as a deep copy.
// Returns ErrToolNotFound if the tool does not exist.
func (s *MemoryToolStore) GetByName(ctx context.Context, name string) (*catalog.ToolRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r := s.findByName(name); r != nil {
		return r.Clone(), nil
	}
	return nil, catalog.ErrToolNotFound
}

// Create stores a deep copy of record with a new ID and timestamps.
// Returns ErrDuplicateToolName if the name is taken.
func (s *MemoryToolStore) Create(ctx context.Context, record *catalog.ToolRecord) (*catalog.ToolRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findByName(record.Name) != nil {
		return nil, catalog.ErrDuplicateToolName
	}

	stored := record.Clone()
	stored.ID = s.nextID
	s.nextID++
	now := s.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.tools[stored.ID] = stored
	return stored.Clone(), nil
}

// Update applies patch to an existing tool and refreshes UpdatedAt.
// Returns ErrToolNotFound if the tool does not exist, ErrDuplicateToolName
// if the patch renames it onto another tool's name.
func (s *MemoryToolStore) Update(ctx context.Context, id int64, patch catalog.ToolPatch) (*catalog.ToolRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tools[id]
	if !ok {
		return nil, catalog.ErrToolNotFound
	}
	if patch.Name != nil && *patch.Name != existing.Name {
		if other := s.findByName(*patch.Name); other != nil {
			return nil, catalog.ErrDuplicateToolName
		}
	}

	updated := existing.Clone()
	patch.Apply(updated)
	updated.UpdatedAt = s.now()
	if updated.UpdatedAt.Before(existing.UpdatedAt) {
		updated.UpdatedAt = existing.UpdatedAt
	}
	s.tools[id] = updated
	return updated.Clone(), nil
}

// Delete removes a tool by ID.
// Returns ErrToolNotFound if the tool does not exist.
func (s *MemoryToolStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tools[id]; !ok {
		return catalog.ErrToolNotFound
	}
	delete(s.tools, id)
	return nil
}

// findByName must be called with s.mu held.
func (s *MemoryToolStore) findByName(name string) *catalog.ToolRecord {
	for _, r := range s.tools {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Compile-time interface verification.
var _ catalog.ToolStore = (*MemoryToolStore)(nil)
