// Package objectstore provides a namespaced key/value store for small JSON
// documents such as add-host session status.
package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key does not exist
var ErrNotFound = errors.New("object not found")

// Object is a flat document of named fields
type Object map[string]any

// Store is a namespaced object store
type Store interface {
	Get(ctx context.Context, key string) (Object, error)
	Set(ctx context.Context, key string, value Object) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// KeyName joins a namespace and a key
func KeyName(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + ":" + key
}

// Encode converts a JSON serialisable struct into an Object
func Encode(v any) (Object, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode object: %w", err)
	}
	var obj Object
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, fmt.Errorf("failed to encode object: %w", err)
	}
	return obj, nil
}

// Decode fills v from obj
func Decode(obj Object, v any) error {
	b, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to decode object: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to decode object: %w", err)
	}
	return nil
}
