package record

import (
	"context"
	"fmt"
	"sync"
)

// Mutation is the event a Store emits when a record changes. Kind matches
// the rule trigger event kinds ("created", "updated", "deleted"). On delete,
// Snapshot holds the record's last field values so conditions can still be
// evaluated after the row is gone.
type Mutation struct {
	EntityType string                 `json:"entity_type"`
	Kind       string                 `json:"event"`
	RecordID   string                 `json:"record_id"`
	Changes    map[string]FieldDelta  `json:"changes,omitempty"`
	Snapshot   map[string]interface{} `json:"snapshot,omitempty"`
}

// FieldDelta is one field's prior and new value. HasOld is false when the
// record had no prior state (create).
type FieldDelta struct {
	Old    interface{} `json:"old,omitempty"`
	New    interface{} `json:"new,omitempty"`
	HasOld bool        `json:"has_old"`
}

// MemStore is an in-memory Store that fans mutations out to subscribed
// listeners synchronously. It backs tests and the standalone dev server;
// production deployments wire their own Store.
type MemStore struct {
	mu        sync.RWMutex
	tables    map[string]map[string]map[string]interface{}
	nextID    int
	listeners []func(Mutation)
}

func NewMemStore() *MemStore {
	return &MemStore{tables: make(map[string]map[string]map[string]interface{})}
}

// Subscribe registers a mutation listener. Call before any writes; listener
// registration is not synchronized against in-flight mutations.
func (s *MemStore) Subscribe(fn func(Mutation)) {
	s.listeners = append(s.listeners, fn)
}

func (s *MemStore) emit(m Mutation) {
	for _, fn := range s.listeners {
		fn(m)
	}
}

func (s *MemStore) Get(ctx context.Context, entityType, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	table, ok := s.tables[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entityType)
	}
	fields, ok := table[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, entityType, id)
	}
	return &Record{Type: entityType, ID: id, Fields: copyFields(fields)}, nil
}

func (s *MemStore) Create(ctx context.Context, entityType string, fields map[string]interface{}) (*Record, error) {
	s.mu.Lock()
	table, ok := s.tables[entityType]
	if !ok {
		table = make(map[string]map[string]interface{})
		s.tables[entityType] = table
	}
	s.nextID++
	id := fmt.Sprintf("%d", s.nextID)
	if v, ok := fields["id"]; ok {
		id = fmt.Sprintf("%v", v)
	}
	stored := copyFields(fields)
	delete(stored, "id")
	table[id] = stored
	s.mu.Unlock()

	changes := make(map[string]FieldDelta, len(stored))
	for k, v := range stored {
		changes[k] = FieldDelta{New: v}
	}
	s.emit(Mutation{EntityType: entityType, Kind: "created", RecordID: id, Changes: changes})
	return &Record{Type: entityType, ID: id, Fields: copyFields(stored)}, nil
}

func (s *MemStore) Update(ctx context.Context, entityType, id string, fields map[string]interface{}) (*Record, error) {
	s.mu.Lock()
	table, ok := s.tables[entityType]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entityType)
	}
	stored, ok := table[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, entityType, id)
	}
	changes := make(map[string]FieldDelta)
	for k, v := range fields {
		old, had := stored[k]
		if had && equalValue(old, v) {
			continue
		}
		changes[k] = FieldDelta{Old: old, New: v, HasOld: true}
		stored[k] = v
	}
	result := copyFields(stored)
	s.mu.Unlock()

	if len(changes) > 0 {
		s.emit(Mutation{EntityType: entityType, Kind: "updated", RecordID: id, Changes: changes})
	}
	return &Record{Type: entityType, ID: id, Fields: result}, nil
}

func (s *MemStore) Delete(ctx context.Context, entityType, id string) error {
	s.mu.Lock()
	table, ok := s.tables[entityType]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownEntity, entityType)
	}
	stored, ok := table[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", ErrNotFound, entityType, id)
	}
	snapshot := copyFields(stored)
	delete(table, id)
	s.mu.Unlock()

	changes := make(map[string]FieldDelta, len(snapshot))
	for k, v := range snapshot {
		changes[k] = FieldDelta{Old: v, HasOld: true}
	}
	s.emit(Mutation{EntityType: entityType, Kind: "deleted", RecordID: id, Changes: changes, Snapshot: snapshot})
	return nil
}

func copyFields(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func equalValue(a, b interface{}) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
