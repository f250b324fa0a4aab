package harvest

import "github.com/jmylchreest/harvest/pkg/content"

// Status is the state of one category during a scrape.
type Status string

const (
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusCached  Status = "cached"
	StatusFailed  Status = "failed"
)

// Source says where a category's items came from.
type Source string

const (
	SourceFresh Source = "fresh"
	SourceStore Source = "store"
)

// Observer receives notifications as a scrape progresses. Implement it to
// drive a UI; the Harvester never waits on it for anything but the call
// itself, so implementations should return quickly.
type Observer interface {
	// OnCategoryStatus reports a category entering a state with count items.
	OnCategoryStatus(category content.Category, status Status, count int)

	// OnProgress reports overall progress in percent (0-100).
	OnProgress(percent int, message string)

	// OnProxyHealth reports how many relays were recently seen healthy.
	OnProxyHealth(healthy, total int)

	// OnCategoryError reports why a category failed.
	OnCategoryError(category content.Category, message string)
}

// ProgressFunc receives overall progress in percent.
type ProgressFunc func(percent int, message string)

// ObserverFuncs adapts plain functions to an Observer. Nil fields are skipped.
type ObserverFuncs struct {
	CategoryStatus func(category content.Category, status Status, count int)
	Progress       func(percent int, message string)
	ProxyHealth    func(healthy, total int)
	CategoryError  func(category content.Category, message string)
}

// OnCategoryStatus implements Observer.
func (f ObserverFuncs) OnCategoryStatus(category content.Category, status Status, count int) {
	if f.CategoryStatus != nil {
		f.CategoryStatus(category, status, count)
	}
}

// OnProgress implements Observer.
func (f ObserverFuncs) OnProgress(percent int, message string) {
	if f.Progress != nil {
		f.Progress(percent, message)
	}
}

// OnProxyHealth implements Observer.
func (f ObserverFuncs) OnProxyHealth(healthy, total int) {
	if f.ProxyHealth != nil {
		f.ProxyHealth(healthy, total)
	}
}

// OnCategoryError implements Observer.
func (f ObserverFuncs) OnCategoryError(category content.Category, message string) {
	if f.CategoryError != nil {
		f.CategoryError(category, message)
	}
}

// MultiObserver combines multiple observers into one.
// All observers are called for each event.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver creates an observer that dispatches to multiple observers.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	return &MultiObserver{observers: observers}
}

// Add adds an observer to the multi-observer.
func (m *MultiObserver) Add(obs Observer) {
	m.observers = append(m.observers, obs)
}

// OnCategoryStatus dispatches to all registered observers.
func (m *MultiObserver) OnCategoryStatus(category content.Category, status Status, count int) {
	for _, obs := range m.observers {
		obs.OnCategoryStatus(category, status, count)
	}
}

// OnProgress dispatches to all registered observers.
func (m *MultiObserver) OnProgress(percent int, message string) {
	for _, obs := range m.observers {
		obs.OnProgress(percent, message)
	}
}

// OnProxyHealth dispatches to all registered observers.
func (m *MultiObserver) OnProxyHealth(healthy, total int) {
	for _, obs := range m.observers {
		obs.OnProxyHealth(healthy, total)
	}
}

// OnCategoryError dispatches to all registered observers.
func (m *MultiObserver) OnCategoryError(category content.Category, message string) {
	for _, obs := range m.observers {
		obs.OnCategoryError(category, message)
	}
}

type nopObserver struct{}

func (nopObserver) OnCategoryStatus(content.Category, Status, int) {}
func (nopObserver) OnProgress(int, string)                         {}
func (nopObserver) OnProxyHealth(int, int)                         {}
func (nopObserver) OnCategoryError(content.Category, string)       {}
