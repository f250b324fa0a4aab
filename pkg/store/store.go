// Package store defines the durable key-value store that harvest persists
// proxy scores, cached content, settings and seen items into.
//
// Values are JSON-encoded. Implementations must make a single Set atomic:
// a reader sees either the old value or the new one, never a mix.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// Store is a string-keyed store of JSON values.
type Store interface {
	// Get decodes the value stored under key into dst.
	// It returns false with a nil error when the key is absent.
	Get(key string, dst any) (bool, error)

	// Set encodes value as JSON and stores it under key.
	Set(key string, value any) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Close releases any resources (database handles, etc.).
	Close() error
}

// Error types for distinguishing failure reasons.
// Check with errors.Is(err, store.ErrQuotaExceeded).
var (
	// ErrQuotaExceeded indicates a write was refused for size. The error is
	// a *QuotaError carrying the numbers.
	ErrQuotaExceeded = errors.New("store quota exceeded")
	// ErrInvalidKey indicates a key that cannot be stored.
	ErrInvalidKey = errors.New("invalid store key")
	// ErrClosed indicates use of a store after Close.
	ErrClosed = errors.New("store closed")
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// QuotaError reports a write refused for size.
type QuotaError struct {
	Key   string
	Size  int // encoded size of the refused value
	Limit int
	// Total is set when the store-wide limit was hit rather than the
	// per-value one. Used is then the space held by every other key.
	Total bool
	Used  int
}

func (e *QuotaError) Error() string {
	if e.Total {
		return fmt.Sprintf("%s: %s needs %d bytes, %d of %d in use", ErrQuotaExceeded, e.Key, e.Size, e.Used, e.Limit)
	}
	return fmt.Sprintf("%s: %s is %d bytes, limit %d", ErrQuotaExceeded, e.Key, e.Size, e.Limit)
}

// Is makes errors.Is(err, ErrQuotaExceeded) match.
func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// FitsAfterFreeing reports whether the refused write would succeed once n
// bytes held by another key are released. A value over the per-value
// limit never fits.
func (e *QuotaError) FitsAfterFreeing(n int) bool {
	return e.Total && e.Used-n+e.Size <= e.Limit
}

// Option configures a store.
type Option func(*options)

type options struct {
	maxValueBytes int
	maxTotalBytes int
}

// WithMaxValueBytes caps the encoded size of a single value. Set returns
// ErrQuotaExceeded for anything larger. Zero means unlimited.
func WithMaxValueBytes(n int) Option {
	return func(o *options) {
		o.maxValueBytes = n
	}
}

// WithMaxTotalBytes caps the encoded size of all values together. A Set
// that would take the store over the limit returns ErrQuotaExceeded and
// leaves the previous value in place. Zero means unlimited.
func WithMaxTotalBytes(n int) Option {
	return func(o *options) {
		o.maxTotalBytes = n
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// encode validates the key and marshals value within the configured quota.
func (o options) encode(key string, value any) ([]byte, error) {
	if !keyPattern.MatchString(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if o.maxValueBytes > 0 && len(data) > o.maxValueBytes {
		return nil, &QuotaError{Key: key, Size: len(data), Limit: o.maxValueBytes}
	}
	return data, nil
}

// checkTotal refuses a value of size bytes when the other keys already
// hold used bytes and together they would pass the store-wide limit.
func (o options) checkTotal(key string, size, used int) error {
	if o.maxTotalBytes > 0 && used+size > o.maxTotalBytes {
		return &QuotaError{Key: key, Size: size, Limit: o.maxTotalBytes, Total: true, Used: used}
	}
	return nil
}

func decode(key string, data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Config selects and configures a store implementation.
type Config struct {
	Driver        string `mapstructure:"driver" validate:"omitempty,oneof=memory file sqlite"`
	Path          string `mapstructure:"path" validate:"required_unless=Driver memory"`
	MaxValueBytes int    `mapstructure:"max_value_bytes" validate:"gte=0"`
	MaxTotalBytes int    `mapstructure:"max_total_bytes" validate:"gte=0"`
}

// Validate checks cfg for an unknown driver, a missing path or a negative
// limit.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid store config: %w", err)
	}
	return nil
}

// Open validates cfg and creates the store named by cfg.Driver. An empty
// driver means sqlite.
func Open(cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := []Option{
		WithMaxValueBytes(cfg.MaxValueBytes),
		WithMaxTotalBytes(cfg.MaxTotalBytes),
	}

	switch cfg.Driver {
	case DriverMemory:
		return NewMemory(opts...), nil
	case DriverFile:
		return NewFile(cfg.Path, opts...)
	case DriverSQLite, "":
		return NewSQLite(cfg.Path, opts...)
	default:
		return nil, fmt.Errorf("unknown store driver: %s (use memory, file or sqlite)", cfg.Driver)
	}
}
