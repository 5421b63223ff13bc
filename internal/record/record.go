// Package record defines the engine's contract with the external data store:
// typed records addressed by entity type + id, with relationship traversal
// driven by an explicit per-entity schema rather than reflection.
package record

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrUnknownEntity is returned for entity types the store has never seen.
var ErrUnknownEntity = errors.New("unknown entity type")

// Record is one typed row from the data store.
type Record struct {
	Type   string                 `json:"type"`
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields"`
}

// Store is the CRUD surface the engine consumes. Implementations are
// provided by the surrounding system; MemStore exists for tests and the
// dev server.
type Store interface {
	Get(ctx context.Context, entityType, id string) (*Record, error)
	Create(ctx context.Context, entityType string, fields map[string]interface{}) (*Record, error)
	Update(ctx context.Context, entityType, id string, fields map[string]interface{}) (*Record, error)
	Delete(ctx context.Context, entityType, id string) error
}

// Relation declares a to-one hop from one entity type to another, keyed by
// the foreign-key field holding the target id.
type Relation struct {
	Target  string
	FKField string
}

// Schema is the per-entity-type accessor registry used to resolve dotted
// relationship paths without reflection.
type Schema struct {
	relations map[string]map[string]Relation // entity type → relation name → Relation
}

func NewSchema() *Schema {
	return &Schema{relations: make(map[string]map[string]Relation)}
}

// Relate registers relation name on entityType pointing at target, read
// through fkField. Registration happens at startup; Schema is read-only
// afterwards.
func (s *Schema) Relate(entityType, name, target, fkField string) *Schema {
	m, ok := s.relations[entityType]
	if !ok {
		m = make(map[string]Relation)
		s.relations[entityType] = m
	}
	m[name] = Relation{Target: target, FKField: fkField}
	return s
}

// Relation looks up a declared relation.
func (s *Schema) Relation(entityType, name string) (Relation, bool) {
	rel, ok := s.relations[entityType][name]
	return rel, ok
}

// SplitPath splits a dotted field path into segments.
func SplitPath(path string) []string {
	return strings.Split(path, ".")
}

// ResolvePath walks path from root one hop at a time. Intermediate segments
// are relation hops (declared in schema, or a nested map field); the final
// segment is a plain field read. A missing intermediate relation, null
// foreign key, or absent field yields ok=false with a nil error — "absent"
// is a value-level outcome, not a failure. A non-nil error means the store
// itself failed.
func ResolvePath(ctx context.Context, store Store, schema *Schema, root *Record, path []string) (interface{}, bool, error) {
	if root == nil || len(path) == 0 {
		return nil, false, nil
	}
	// Tolerate a leading root alias matching the record's own type, so both
	// "customer.tier" and "order.customer.tier" resolve from an order.
	if len(path) > 1 && strings.EqualFold(path[0], root.Type) {
		path = path[1:]
	}

	cur := root
	for i := 0; i < len(path)-1; i++ {
		seg := path[i]
		if rel, ok := schema.Relation(cur.Type, seg); ok {
			fk, present := cur.Fields[rel.FKField]
			if !present || fk == nil {
				return nil, false, nil
			}
			next, err := store.Get(ctx, rel.Target, fmt.Sprintf("%v", fk))
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnknownEntity) {
				return nil, false, nil
			}
			if err != nil {
				return nil, false, fmt.Errorf("resolve %s: %w", strings.Join(path, "."), err)
			}
			cur = next
			continue
		}
		// Nested map field, e.g. JSON blobs stored inline.
		sub, ok := cur.Fields[seg].(map[string]interface{})
		if !ok {
			return nil, false, nil
		}
		v, ok := resolveMap(sub, path[i+1:])
		return v, ok, nil
	}

	v, ok := cur.Fields[path[len(path)-1]]
	if !ok || v == nil {
		return nil, false, nil
	}
	return v, true, nil
}

// ResolveRecord walks path from root treating every segment as a relation
// hop and returns the final related record. Absent hops yield ok=false.
func ResolveRecord(ctx context.Context, store Store, schema *Schema, root *Record, path []string) (*Record, bool, error) {
	if root == nil {
		return nil, false, nil
	}
	if len(path) > 0 && strings.EqualFold(path[0], root.Type) {
		path = path[1:]
	}
	cur := root
	for _, seg := range path {
		rel, ok := schema.Relation(cur.Type, seg)
		if !ok {
			return nil, false, nil
		}
		fk, present := cur.Fields[rel.FKField]
		if !present || fk == nil {
			return nil, false, nil
		}
		next, err := store.Get(ctx, rel.Target, fmt.Sprintf("%v", fk))
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnknownEntity) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("resolve record %s: %w", strings.Join(path, "."), err)
		}
		cur = next
	}
	return cur, true, nil
}

func resolveMap(m map[string]interface{}, path []string) (interface{}, bool) {
	for i, seg := range path {
		v, ok := m[seg]
		if !ok || v == nil {
			return nil, false
		}
		if i == len(path)-1 {
			return v, true
		}
		m, ok = v.(map[string]interface{})
		if !ok {
			return nil, false
		}
	}
	return nil, false
}
