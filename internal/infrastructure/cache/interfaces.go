package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Store is the key-value surface the engine caches through. Both the
// in-process and the Redis implementations satisfy it, so a deployment
// without Redis loses nothing but persistence across restarts. All
// implementations report misses as ErrKeyNotFound and treat a zero ttl
// as "keep until deleted".
type Store interface {
	Get(ctx context.Context, key string) (string, error)

	// Set accepts strings and byte slices as-is; any other value is
	// stored in its JSON form.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	// GetJSON reads key and unmarshals the stored document into dest.
	GetJSON(ctx context.Context, key string, dest interface{}) error

	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	Close() error
}

// SignalPrefix namespaces cached signal responses
const SignalPrefix = "risk:signal:"

// ErrKeyNotFound reports a cache miss for a specific key.
type ErrKeyNotFound struct {
	Key string
}

func (e ErrKeyNotFound) Error() string {
	return fmt.Sprintf("cache key %q not found", e.Key)
}

// IsNotFound reports whether err is a cache miss
func IsNotFound(err error) bool {
	var nf ErrKeyNotFound
	return errors.As(err, &nf)
}

// encodeValue normalizes a value into the string form stores persist.
// Strings and byte slices pass through untouched so pre-encoded
// payloads are never double-escaped.
func encodeValue(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("cache encode %T: %w", value, err)
		}
		return string(data), nil
	}
}

func encodeJSON(key string, value interface{}) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("cache encode %q: %w", key, err)
	}
	return string(data), nil
}

func decodeJSON(key string, data []byte, dest interface{}) error {
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache decode %q: %w", key, err)
	}
	return nil
}
