// Package session holds the browser-tab-scoped state shared by the filter
// panel and every view: the current filter query, the last searched map
// location and the "my events only" flag. Changes are broadcast to
// subscribers; delivery order across subscribers is unspecified.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"

	appLog "societycal/internal/log"
	"societycal/internal/model"
)

// Backend keys.
const (
	keyFilter           = "filterQueryString"
	keySearchedLocation = "searchedLocation"
	keyMyEventsOnly     = "myEventsOnly"
)

// FilterListener receives the full current filter query after every change.
type FilterListener func(query string)

// LocationListener receives a newly searched map location.
type LocationListener func(loc model.SearchedLocation)

// Snapshot is the part of the session that decides which events a view
// should show. Views tag each fetch with the snapshot it was issued for.
type Snapshot struct {
	Query        string
	MyEventsOnly bool
}

// Subscription is a handle for removing a listener.
type Subscription struct {
	id     uuid.UUID
	cancel func(uuid.UUID)
}

// Cancel removes the listener. Calling it more than once is harmless.
func (s Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel(s.id)
	}
}

// Store is the filter state store. The in-memory copy is authoritative for
// the running session; the backend mirrors it.
type Store struct {
	backend Backend

	mu       sync.RWMutex
	filter   string
	mine     bool
	location *model.SearchedLocation

	filterSubs   map[uuid.UUID]FilterListener
	locationSubs map[uuid.UUID]LocationListener
}

// NewStore loads any values already present in the backend.
func NewStore(ctx context.Context, backend Backend) (*Store, error) {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &Store{
		backend:      backend,
		filterSubs:   make(map[uuid.UUID]FilterListener),
		locationSubs: make(map[uuid.UUID]LocationListener),
	}

	if v, ok, err := backend.Get(ctx, keyFilter); err != nil {
		return nil, err
	} else if ok {
		s.filter = v
	}

	if v, ok, err := backend.Get(ctx, keyMyEventsOnly); err != nil {
		return nil, err
	} else if ok {
		s.mine, _ = strconv.ParseBool(v)
	}

	if v, ok, err := backend.Get(ctx, keySearchedLocation); err != nil {
		return nil, err
	} else if ok {
		var loc model.SearchedLocation
		if err := json.Unmarshal([]byte(v), &loc); err != nil {
			appLog.Error("session: discarding unreadable searched location", err)
		} else {
			s.location = &loc
		}
	}

	return s, nil
}

// Reset clears the filter without broadcasting, so a fresh load always
// starts unfiltered. The searched location and my-events flag survive.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.filter = ""
	s.mu.Unlock()
	return s.backend.Delete(ctx, keyFilter)
}

// Filter returns the current filter query ("" when unconstrained).
func (s *Store) Filter() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// MyEventsOnly reports whether views should show only the user's events.
func (s *Store) MyEventsOnly() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mine
}

// Snapshot returns the current filter and my-events flag together.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Query: s.filter, MyEventsOnly: s.mine}
}

// SetFilter replaces the filter query and broadcasts it. A backend write
// failure is returned, but the new value is still applied and broadcast.
func (s *Store) SetFilter(ctx context.Context, query string) error {
	s.mu.Lock()
	s.filter = query
	s.mu.Unlock()

	var err error
	if query == "" {
		err = s.backend.Delete(ctx, keyFilter)
	} else {
		err = s.backend.Set(ctx, keyFilter, query)
	}
	if err != nil {
		appLog.Error("session: persist filter failed", err, "query", query)
	}

	s.broadcastFilter(query)
	return err
}

// SetMyEventsOnly toggles the flag. Views are notified through the filter
// broadcast because the flag changes which events they show.
func (s *Store) SetMyEventsOnly(ctx context.Context, on bool) error {
	s.mu.Lock()
	changed := s.mine != on
	s.mine = on
	query := s.filter
	s.mu.Unlock()

	err := s.backend.Set(ctx, keyMyEventsOnly, strconv.FormatBool(on))
	if err != nil {
		appLog.Error("session: persist my-events flag failed", err)
	}
	if changed {
		s.broadcastFilter(query)
	}
	return err
}

// SearchedLocation returns the last searched location, if any.
func (s *Store) SearchedLocation() (model.SearchedLocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.location == nil {
		return model.SearchedLocation{}, false
	}
	return *s.location, true
}

// SetSearchedLocation stores loc and notifies location listeners.
func (s *Store) SetSearchedLocation(ctx context.Context, loc model.SearchedLocation) error {
	s.mu.Lock()
	s.location = &loc
	s.mu.Unlock()

	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("encode searched location: %w", err)
	}
	if err = s.backend.Set(ctx, keySearchedLocation, string(data)); err != nil {
		appLog.Error("session: persist searched location failed", err)
	}

	for _, fn := range s.locationListeners() {
		fn(loc)
	}
	return err
}

// Subscribe registers fn for filter broadcasts.
func (s *Store) Subscribe(fn FilterListener) Subscription {
	id := uuid.New()
	s.mu.Lock()
	s.filterSubs[id] = fn
	s.mu.Unlock()
	return Subscription{id: id, cancel: s.unsubscribeFilter}
}

// SubscribeLocation registers fn for searched-location changes.
func (s *Store) SubscribeLocation(fn LocationListener) Subscription {
	id := uuid.New()
	s.mu.Lock()
	s.locationSubs[id] = fn
	s.mu.Unlock()
	return Subscription{id: id, cancel: s.unsubscribeLocation}
}

// Subscribers returns the number of filter listeners.
func (s *Store) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filterSubs)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) unsubscribeFilter(id uuid.UUID) {
	s.mu.Lock()
	delete(s.filterSubs, id)
	s.mu.Unlock()
}

func (s *Store) unsubscribeLocation(id uuid.UUID) {
	s.mu.Lock()
	delete(s.locationSubs, id)
	s.mu.Unlock()
}

// broadcastFilter calls listeners outside the lock so they may read the
// store (or set it again) without deadlocking.
func (s *Store) broadcastFilter(query string) {
	s.mu.RLock()
	fns := make([]FilterListener, 0, len(s.filterSubs))
	for _, fn := range s.filterSubs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	appLog.Debug("filters changed", "query", query, "subscribers", len(fns))
	for _, fn := range fns {
		fn(query)
	}
}

func (s *Store) locationListeners() []LocationListener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fns := make([]LocationListener, 0, len(s.locationSubs))
	for _, fn := range s.locationSubs {
		fns = append(fns, fn)
	}
	return fns
}
