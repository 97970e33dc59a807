package scheduler

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/me/gametools/internal/logging"
	"github.com/me/gametools/pkg/model"
)

// DefaultYieldThreshold is the queue length from which the per-tick event
// pass yields once at its midpoint.
const DefaultYieldThreshold = 3

// Registry owns the instant event list and the ordered event queue.
//
// The lists are guarded by mu so that events can be added from outside the
// loop. mu is never held while a hook runs.
type Registry struct {
	mu      sync.Mutex
	instant []Event
	queue   []Event

	yieldThreshold int
	baton          *baton
	observer       Observer
	logger         *slog.Logger

	instantWG sync.WaitGroup
}

// NewRegistry creates an empty Registry. A threshold <= 0 selects
// DefaultYieldThreshold.
func NewRegistry(logger *slog.Logger, yieldThreshold int) *Registry {
	if yieldThreshold <= 0 {
		yieldThreshold = DefaultYieldThreshold
	}
	return &Registry{
		yieldThreshold: yieldThreshold,
		baton:          &baton{},
		observer:       nopObserver{},
		logger:         logging.Component(logger, "event-registry"),
	}
}

// Add registers e. Instant events are appended to the instant list and their
// OnUpdate is started in the background right away. Queued events go to the
// front (FIRST) or the back (LAST) of the queue. Adding an event that is
// already present is rejected with a warning. Add reports whether e was
// added.
func (r *Registry) Add(ctx context.Context, e Event) bool {
	p := e.Priority()

	r.mu.Lock()
	switch p {
	case model.PriorityInstant:
		if slices.Contains(r.instant, e) {
			r.mu.Unlock()
			r.logger.Warn("event already registered", "event_id", e.ID(), "priority", p)
			return false
		}
		r.instant = append(r.instant, e)
	case model.PriorityFirst, model.PriorityLast:
		if slices.Contains(r.queue, e) {
			r.mu.Unlock()
			r.logger.Warn("event already queued", "event_id", e.ID(), "priority", p)
			return false
		}
		if p == model.PriorityFirst {
			r.queue = slices.Insert(r.queue, 0, e)
		} else {
			r.queue = append(r.queue, e)
		}
	default:
		r.mu.Unlock()
		r.logger.Warn("event has unknown priority", "event_id", e.ID(), "priority", p)
		return false
	}
	r.mu.Unlock()

	r.logger.Debug("event added", "event_id", e.ID(), "priority", p, "group", e.Group())
	r.observer.EventAdded(e)

	if p == model.PriorityInstant {
		r.instantWG.Add(1)
		go r.runInstant(context.WithoutCancel(ctx), e)
	}
	return true
}

// runInstant is the fire-and-forget task started for an instant event.
func (r *Registry) runInstant(ctx context.Context, e Event) {
	defer r.instantWG.Done()

	r.baton.mu.Lock()
	defer r.baton.mu.Unlock()
	ctx = withBaton(ctx, r.baton)

	// Removed or stopped while waiting for the loop: OnStop already ran.
	if !r.Contains(e) {
		r.logger.Debug("instant event removed before it ran", "event_id", e.ID())
		return
	}

	var remove bool
	err := safeCall(func() error {
		var err error
		remove, err = e.OnUpdate(ctx)
		return err
	})
	if err != nil {
		r.logger.Error("instant event failed", append([]any{"event_id", e.ID()}, errorAttrs(err)...)...)
	}
	if remove {
		if err := r.Remove(ctx, e); err != nil {
			r.logger.Error("stop instant event", append([]any{"event_id", e.ID()}, errorAttrs(err)...)...)
		}
	}
}

// Remove takes e out of the list matching its priority and then calls its
// OnStop. Removing an event that is not registered logs a warning and does
// nothing, so OnStop runs exactly once per registration.
func (r *Registry) Remove(ctx context.Context, e Event) error {
	r.mu.Lock()
	var found bool
	if e.Priority() == model.PriorityInstant {
		r.instant, found = deleteEvent(r.instant, e)
	} else {
		r.queue, found = deleteEvent(r.queue, e)
	}
	r.mu.Unlock()

	if !found {
		r.logger.Warn("event not registered", "event_id", e.ID(), "priority", e.Priority())
		return nil
	}

	r.logger.Debug("event removed", "event_id", e.ID())
	r.observer.EventRemoved(e)
	return safeCall(func() error { return e.OnStop(ctx) })
}

func deleteEvent(list []Event, e Event) ([]Event, bool) {
	i := slices.Index(list, e)
	if i < 0 {
		return list, false
	}
	return slices.Delete(list, i, i+1), true
}

// Snapshot returns copies of the instant list and the queue.
func (r *Registry) Snapshot() (instant, queued []Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.instant), slices.Clone(r.queue)
}

// Len returns the sizes of the instant list and the queue.
func (r *Registry) Len() (instant, queued int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instant), len(r.queue)
}

// Contains reports whether e is registered in either list.
func (r *Registry) Contains(e Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.instant, e) || slices.Contains(r.queue, e)
}

// Find returns the registered event with the given id, or nil.
func (r *Registry) Find(id string) Event {
	var found Event
	r.RunForAll(func(e Event) {
		if found == nil && e.ID() == id {
			found = e
		}
	})
	return found
}

// RunForAll calls fn for every instant event and then for every queued event.
// It iterates over a snapshot, so fn may add or remove events.
func (r *Registry) RunForAll(fn func(Event)) {
	instant, queued := r.Snapshot()
	for _, e := range instant {
		fn(e)
	}
	for _, e := range queued {
		fn(e)
	}
}

// RunForAllErr is RunForAll for fallible callbacks. It stops at the first
// error and returns it.
func (r *Registry) RunForAllErr(fn func(Event) error) error {
	instant, queued := r.Snapshot()
	for _, e := range instant {
		if err := fn(e); err != nil {
			return err
		}
	}
	for _, e := range queued {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// ByGroup returns all events tagged with group, instant events first.
func (r *Registry) ByGroup(group string) []Event {
	var out []Event
	r.RunForAll(func(e Event) {
		if e.Group() == group {
			out = append(out, e)
		}
	})
	return out
}

// EventsOfType returns all registered events of type T, instant events first.
func EventsOfType[T Event](r *Registry) []T {
	var out []T
	r.RunForAll(func(e Event) {
		if t, ok := e.(T); ok {
			out = append(out, t)
		}
	})
	return out
}

// Update runs OnUpdate for every queued event in queue order. An event that
// asks for removal is removed and the index is adjusted so that no event is
// skipped or visited twice. From yieldThreshold queued events on, the pass
// yields once at its midpoint. Failures are logged per event and never abort
// the pass.
func (r *Registry) Update(ctx context.Context) {
	r.mu.Lock()
	total := len(r.queue)
	r.mu.Unlock()

	yieldAt := -1
	if total >= r.yieldThreshold {
		yieldAt = total / 2
	}

	visited := 0
	for i := 0; ; i++ {
		if visited == yieldAt {
			Yield(ctx)
		}

		r.mu.Lock()
		if i >= len(r.queue) {
			r.mu.Unlock()
			return
		}
		e := r.queue[i]
		r.mu.Unlock()
		visited++

		var remove bool
		err := safeCall(func() error {
			var err error
			remove, err = e.OnUpdate(ctx)
			return err
		})
		if err != nil {
			r.logger.Error("event update failed", append([]any{"event_id", e.ID()}, errorAttrs(err)...)...)
		}
		if remove {
			if err := r.Remove(ctx, e); err != nil {
				r.logger.Error("stop event", append([]any{"event_id", e.ID()}, errorAttrs(err)...)...)
			}
		}

		// The hook may have added or removed events. Continue after e if it
		// is still queued, otherwise at the slot it vacated.
		r.mu.Lock()
		if idx := slices.Index(r.queue, e); idx >= 0 {
			i = idx
		} else {
			i--
		}
		r.mu.Unlock()
	}
}

// StopAll empties both lists and calls OnStop on every event that was
// registered, instant events first.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	instant, queued := r.instant, r.queue
	r.instant, r.queue = nil, nil
	r.mu.Unlock()

	for _, e := range append(instant, queued...) {
		r.observer.EventRemoved(e)
		if err := safeCall(func() error { return e.OnStop(ctx) }); err != nil {
			r.logger.Error("stop event", append([]any{"event_id", e.ID()}, errorAttrs(err)...)...)
		}
	}
}

// WaitInstant blocks until every instant event task started so far has
// finished.
func (r *Registry) WaitInstant() {
	r.instantWG.Wait()
}

// Infos describes the registered events, instant events first.
func (r *Registry) Infos() []model.EventInfo {
	instant, queued := r.Snapshot()
	infos := make([]model.EventInfo, 0, len(instant)+len(queued))
	for _, e := range instant {
		infos = append(infos, eventInfo(e, -1))
	}
	for i, e := range queued {
		infos = append(infos, eventInfo(e, i))
	}
	return infos
}

func eventInfo(e Event, index int) model.EventInfo {
	return model.EventInfo{
		ID:       e.ID(),
		Type:     EventType(e),
		Priority: e.Priority(),
		Group:    e.Group(),
		Index:    index,
	}
}
