package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jmylchreest/harvest/internal/logger"
)

// Reclaiming wraps a Store so that a write refused by the store-wide quota
// may drop one expendable key and retry once. The key is only dropped when
// that frees enough room for the write; a write that would still not fit
// fails with the expendable value left intact.
type Reclaiming struct {
	Store
	expendable string
	mu         sync.Mutex
}

// NewReclaiming wraps st, treating the value under expendable as the one
// to sacrifice when another key needs room.
func NewReclaiming(st Store, expendable string) *Reclaiming {
	return &Reclaiming{Store: st, expendable: expendable}
}

// Set implements Store.
func (r *Reclaiming) Set(key string, value any) error {
	err := r.Store.Set(key, value)
	var qe *QuotaError
	if key == r.expendable || !errors.As(err, &qe) || !qe.Total {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var held json.RawMessage
	found, getErr := r.Store.Get(r.expendable, &held)
	if getErr != nil || !found || !qe.FitsAfterFreeing(len(held)) {
		return err
	}

	logger.Warn("storage quota exceeded, clearing expendable value",
		"key", key, "cleared", r.expendable, "freed_bytes", len(held))
	if err := r.Store.Delete(r.expendable); err != nil {
		return fmt.Errorf("failed to clear %s: %w", r.expendable, err)
	}
	return r.Store.Set(key, value)
}
