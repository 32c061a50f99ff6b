// internal/signaling/patch.go
package signaling

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OpKind names a field-level patch operation.
type OpKind string

const (
	OpSet    OpKind = "set"
	OpUnion  OpKind = "union"
	OpRemove OpKind = "remove"
	OpDelete OpKind = "delete"
)

// Op is one patch operation addressed by a dotted field path, e.g.
// "connections.g-1a2b3c4d.hostCandidates". For union and remove, Value is
// the list of elements to add or drop.
type Op struct {
	Kind  OpKind      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// Set replaces the value at path, creating parent objects as needed.
func Set(path string, value interface{}) Op { return Op{Kind: OpSet, Path: path, Value: value} }

// Union appends elements to the array at path unless an equal element is already there.
func Union(path string, elems ...interface{}) Op {
	return Op{Kind: OpUnion, Path: path, Value: elems}
}

// Remove drops every element equal to one of elems from the array at path.
func Remove(path string, elems ...interface{}) Op {
	return Op{Kind: OpRemove, Path: path, Value: elems}
}

// Delete removes the field at path.
func Delete(path string) Op { return Op{Kind: OpDelete, Path: path} }

// ApplyOps applies ops in order to a JSON document and returns the new
// encoding. Backends call it inside whatever transaction they offer so that
// a batch is atomic with respect to other writers.
func ApplyOps(doc []byte, ops []Op) ([]byte, error) {
	root := map[string]interface{}{}
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &root); err != nil {
			return nil, fmt.Errorf("signaling: decode document: %w", err)
		}
	}
	for _, op := range ops {
		if err := applyOp(root, op); err != nil {
			return nil, err
		}
	}
	return json.Marshal(root)
}

func applyOp(root map[string]interface{}, op Op) error {
	segments := strings.Split(op.Path, ".")
	for _, s := range segments {
		if s == "" {
			return fmt.Errorf("%w: %q", ErrBadPath, op.Path)
		}
	}
	create := op.Kind == OpSet || op.Kind == OpUnion
	parent, err := walk(root, segments[:len(segments)-1], create)
	if err != nil {
		return fmt.Errorf("%w: %q", err, op.Path)
	}
	if parent == nil {
		// nothing to remove or delete under a missing parent
		return nil
	}
	key := segments[len(segments)-1]

	switch op.Kind {
	case OpSet:
		v, err := normalize(op.Value)
		if err != nil {
			return err
		}
		parent[key] = v
	case OpDelete:
		delete(parent, key)
	case OpUnion, OpRemove:
		elems, err := normalizeList(op.Value)
		if err != nil {
			return err
		}
		current, _ := parent[key].([]interface{})
		if op.Kind == OpUnion {
			for _, e := range elems {
				if !containsValue(current, e) {
					current = append(current, e)
				}
			}
			if current == nil {
				current = []interface{}{}
			}
			parent[key] = current
			return nil
		}
		if _, ok := parent[key]; !ok {
			return nil
		}
		kept := make([]interface{}, 0, len(current))
		for _, c := range current {
			if !containsValue(elems, c) {
				kept = append(kept, c)
			}
		}
		parent[key] = kept
	default:
		return fmt.Errorf("signaling: unknown op %q", op.Kind)
	}
	return nil
}

func walk(root map[string]interface{}, segments []string, create bool) (map[string]interface{}, error) {
	cur := root
	for _, s := range segments {
		next, ok := cur[s]
		if !ok || next == nil {
			if !create {
				return nil, nil
			}
			m := map[string]interface{}{}
			cur[s] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]interface{})
		if !ok {
			return nil, ErrBadPath
		}
		cur = m
	}
	return cur, nil
}

// normalize round-trips a value through JSON so typed Go values compare
// equal to values decoded from a stored document.
func normalize(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("signaling: encode op value: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeList(v interface{}) ([]interface{}, error) {
	n, err := normalize(v)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, nil
	}
	list, ok := n.([]interface{})
	if !ok {
		return nil, fmt.Errorf("signaling: union/remove value must be a list")
	}
	return list, nil
}

func containsValue(list []interface{}, v interface{}) bool {
	key := canonical(v)
	for _, e := range list {
		if canonical(e) == key {
			return true
		}
	}
	return false
}

// canonical relies on encoding/json sorting map keys.
func canonical(v interface{}) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}
