// Package state is the cached, observable view of one owner's data that UIs
// sit on. Each collection is loaded on first use and kept until a mutation
// through the facade invalidates that collection; the others stay cached.
// Only one save may be in flight at a time.
package state

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hpungsan/arcana/internal/deck"
	"github.com/hpungsan/arcana/internal/errors"
	"github.com/hpungsan/arcana/internal/logging"
	"github.com/hpungsan/arcana/internal/ops"
)

// Resource names a cached collection.
type Resource string

const (
	ResourceDaily    Resource = "daily"
	ResourceReadings Resource = "readings"
	ResourceJournal  Resource = "journal"
	ResourceCatalog  Resource = "catalog"
)

// Status is the lifecycle of one cached collection:
// empty -> loading -> populated -> stale (after a mutation) -> loading -> populated.
type Status string

const (
	StatusEmpty     Status = "empty"
	StatusLoading   Status = "loading"
	StatusPopulated Status = "populated"
	StatusStale     Status = "stale"
)

// View is a read-only picture of one collection.
type View[T any] struct {
	Data   T
	Status Status
	Err    *Failure
}

// Loading reports whether a fetch is running.
func (v View[T]) Loading() bool { return v.Status == StatusLoading }

// Snapshot is the whole facade state at one moment.
type Snapshot struct {
	Daily    View[*deck.DailyCard]
	Readings View[[]deck.Reading]
	Journal  View[[]deck.JournalEntry]
	Saving   bool
}

type slot[T any] struct {
	data   T
	has    bool
	status Status
	err    *Failure

	// gen increments on every invalidation so a load that started before
	// a mutation can't overwrite the refreshed data.
	gen uint64
}

func (s *slot[T]) invalidate() {
	s.gen++
	if s.has {
		s.status = StatusStale
	}
}

// Facade serves one owner's daily card, readings and journal.
type Facade struct {
	deps  *ops.Deps
	owner string
	log   *slog.Logger
	loads singleflight.Group

	mu       sync.Mutex
	daily    slot[*deck.DailyCard]
	readings slot[[]deck.Reading]
	journal  slot[[]deck.JournalEntry]
	saving   bool
	subs     map[int]func(Snapshot)
	nextSub  int
}

// New creates a facade over deps for owner. An empty owner uses the configured default.
func New(deps *ops.Deps, owner string, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = logging.Discard()
	}
	f := &Facade{
		deps:  deps,
		owner: owner,
		log:   logger.With("component", "state", "owner", owner),
		subs:  make(map[int]func(Snapshot)),
	}
	f.daily.status = StatusEmpty
	f.readings.status = StatusEmpty
	f.journal.status = StatusEmpty
	return f
}

// Owner returns the owner this facade serves ("" means the configured default).
func (f *Facade) Owner() string { return f.owner }

// Subscribe registers fn to receive a Snapshot after every state change.
// fn runs on the goroutine that made the change, which for loads is the
// shared fetch goroutine, and must not block.
// The returned func unsubscribes.
func (f *Facade) Subscribe(fn func(Snapshot)) func() {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// Snapshot returns the current state. Slices are copies.
func (f *Facade) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Facade) snapshotLocked() Snapshot {
	return Snapshot{
		Daily: View[*deck.DailyCard]{Data: f.daily.data, Status: f.daily.status, Err: f.daily.err},
		Readings: View[[]deck.Reading]{
			Data: slices.Clone(f.readings.data), Status: f.readings.status, Err: f.readings.err,
		},
		Journal: View[[]deck.JournalEntry]{
			Data: slices.Clone(f.journal.data), Status: f.journal.status, Err: f.journal.err,
		},
		Saving: f.saving,
	}
}

func (f *Facade) notify() {
	f.mu.Lock()
	if len(f.subs) == 0 {
		f.mu.Unlock()
		return
	}
	snap := f.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// Daily returns today's card. A cached card from an earlier date is reloaded.
func (f *Facade) Daily(ctx context.Context) (*deck.DailyCard, error) {
	fresh := func(rec *deck.DailyCard) bool {
		today, err := ops.TodayKey(f.deps)
		return err == nil && rec != nil && rec.Date == today
	}
	return load(ctx, f, ResourceDaily, &f.daily, fresh, func(ctx context.Context) (*deck.DailyCard, error) {
		return ops.DailyCard(ctx, f.deps, ops.DailyInput{Owner: f.owner})
	})
}

// Readings returns every reading, newest first.
func (f *Facade) Readings(ctx context.Context) ([]deck.Reading, error) {
	data, err := load(ctx, f, ResourceReadings, &f.readings, nil, func(ctx context.Context) ([]deck.Reading, error) {
		return ops.AllReadings(ctx, f.deps, f.owner)
	})
	return slices.Clone(data), err
}

// Reading finds one reading in the cached log.
func (f *Facade) Reading(ctx context.Context, id string) (*deck.Reading, bool, error) {
	readings, err := f.Readings(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := range readings {
		if readings[i].ID == id {
			return &readings[i], true, nil
		}
	}
	return nil, false, nil
}

// Journal returns every journal entry, newest first.
func (f *Facade) Journal(ctx context.Context) ([]deck.JournalEntry, error) {
	data, err := load(ctx, f, ResourceJournal, &f.journal, nil, func(ctx context.Context) ([]deck.JournalEntry, error) {
		return ops.AllJournalEntries(ctx, f.deps, f.owner)
	})
	return slices.Clone(data), err
}

// LoadAll fills every empty collection concurrently and returns the first failure.
func (f *Facade) LoadAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := f.Daily(gctx)
		return err
	})
	g.Go(func() error {
		_, err := f.Readings(gctx)
		return err
	})
	g.Go(func() error {
		_, err := f.Journal(gctx)
		return err
	})
	return g.Wait()
}

// Refresh drops one collection from the cache and loads it again.
func (f *Facade) Refresh(ctx context.Context, res Resource) error {
	f.invalidate(res)
	return f.reload(ctx, res, true)
}

// load returns the cached data of s unless it is missing or stale, or fresh
// rejects it. Concurrent loads of one resource share a single fetch, which
// runs detached from any one caller's cancellation; a caller that gives up
// gets its own cancellation error and the fetch still lands in the slot.
func load[T any](ctx context.Context, f *Facade, res Resource, s *slot[T], fresh func(T) bool,
	fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	f.mu.Lock()
	if s.status == StatusPopulated && (fresh == nil || fresh(s.data)) {
		data := s.data
		f.mu.Unlock()
		return data, nil
	}
	f.mu.Unlock()

	fetchCtx := context.WithoutCancel(ctx)
	ch := f.loads.DoChan(string(res), func() (any, error) {
		f.mu.Lock()
		gen := s.gen
		s.status = StatusLoading
		f.mu.Unlock()
		f.notify()

		data, err := fetch(fetchCtx)

		f.mu.Lock()
		var fail *Failure
		if err != nil {
			fail = toFailure(fetchCtx, f.log, res, "load", err)
		}
		if s.gen == gen {
			if fail != nil {
				s.err = fail
				s.status = StatusEmpty
				if s.has {
					s.status = StatusStale
				}
			} else {
				s.data, s.has, s.err = data, true, nil
				s.status = StatusPopulated
			}
		}
		f.mu.Unlock()
		f.notify()

		if fail != nil {
			return nil, fail
		}
		return data, nil
	})

	select {
	case <-ctx.Done():
		return zero, toFailure(ctx, f.log, res, "load", errors.NewCancelled("load "+string(res)))
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(T), nil
	}
}

func (f *Facade) invalidate(res Resource) {
	f.mu.Lock()
	switch res {
	case ResourceDaily:
		f.daily.invalidate()
	case ResourceReadings:
		f.readings.invalidate()
	case ResourceJournal:
		f.journal.invalidate()
	}
	f.mu.Unlock()
	f.loads.Forget(string(res))
	f.notify()
}

// reload fetches res again. Unless force is set, a collection nobody has
// loaded yet stays empty until first use.
func (f *Facade) reload(ctx context.Context, res Resource, force bool) error {
	f.mu.Lock()
	var has bool
	switch res {
	case ResourceDaily:
		has = f.daily.has
	case ResourceReadings:
		has = f.readings.has
	case ResourceJournal:
		has = f.journal.has
	}
	f.mu.Unlock()
	if !has && !force {
		return nil
	}

	var err error
	switch res {
	case ResourceDaily:
		_, err = f.Daily(ctx)
	case ResourceReadings:
		_, err = f.Readings(ctx)
	case ResourceJournal:
		_, err = f.Journal(ctx)
	}
	return err
}

func (f *Facade) setErr(res Resource, fail *Failure) {
	f.mu.Lock()
	switch res {
	case ResourceDaily:
		f.daily.err = fail
	case ResourceReadings:
		f.readings.err = fail
	case ResourceJournal:
		f.journal.err = fail
	}
	f.mu.Unlock()
}

// mutate runs fn as the single in-flight save. When fn reports a change, the
// res collection is invalidated and, if it was loaded, reloaded. A failed
// reload is recorded on the collection but doesn't fail the save.
func mutate[R any](ctx context.Context, f *Facade, res Resource, action string,
	fn func(context.Context) (R, bool, error)) (R, error) {
	var zero R

	f.mu.Lock()
	if f.saving {
		f.mu.Unlock()
		f.log.DebugContext(ctx, "save rejected, another save in flight", "resource", res, "action", action)
		return zero, busyFailure(res)
	}
	f.saving = true
	f.mu.Unlock()
	f.notify()

	out, changed, err := fn(ctx)

	f.mu.Lock()
	f.saving = false
	f.mu.Unlock()

	if err != nil {
		fail := toFailure(ctx, f.log, res, action, err)
		f.setErr(res, fail)
		f.notify()
		return zero, fail
	}
	if changed {
		f.invalidate(res)
		_ = f.reload(ctx, res, false)
	} else {
		f.notify()
	}
	return out, nil
}

// CreateReading saves a reading and refreshes the reading log.
func (f *Facade) CreateReading(ctx context.Context, spreadID int, question string, cards []ops.CardPlacement) (*deck.Reading, error) {
	return mutate(ctx, f, ResourceReadings, "create reading", func(ctx context.Context) (*deck.Reading, bool, error) {
		r, err := ops.CreateReading(ctx, f.deps, ops.CreateReadingInput{
			Owner:    f.owner,
			SpreadID: spreadID,
			Question: question,
			Cards:    cards,
		})
		return r, err == nil, err
	})
}

// Draw deals a spread. Only a saved draw counts as a mutation.
func (f *Facade) Draw(ctx context.Context, spreadID int, question string, save bool) (*ops.DrawOutput, error) {
	input := ops.DrawInput{Owner: f.owner, SpreadID: spreadID, Question: question, Save: save}
	if !save {
		out, err := ops.DrawSpread(ctx, f.deps, input)
		if err != nil {
			return nil, toFailure(ctx, f.log, ResourceCatalog, "draw", err)
		}
		return out, nil
	}
	return mutate(ctx, f, ResourceReadings, "draw", func(ctx context.Context) (*ops.DrawOutput, bool, error) {
		out, err := ops.DrawSpread(ctx, f.deps, input)
		return out, err == nil, err
	})
}

// UpdateReadingNotes replaces a reading's notes. false means no such reading.
func (f *Facade) UpdateReadingNotes(ctx context.Context, id, notes string) (bool, error) {
	return mutate(ctx, f, ResourceReadings, "update notes", func(ctx context.Context) (bool, bool, error) {
		out, err := ops.UpdateReadingNotes(ctx, f.deps, ops.UpdateNotesInput{Owner: f.owner, ID: id, Notes: notes})
		if err != nil {
			return false, false, err
		}
		return out.Updated, out.Updated, nil
	})
}

// DeleteReading removes a reading. false means no such reading.
func (f *Facade) DeleteReading(ctx context.Context, id string) (bool, error) {
	return mutate(ctx, f, ResourceReadings, "delete reading", func(ctx context.Context) (bool, bool, error) {
		out, err := ops.DeleteReading(ctx, f.deps, ops.DeleteReadingInput{Owner: f.owner, ID: id})
		if err != nil {
			return false, false, err
		}
		return out.Deleted, out.Deleted, nil
	})
}

// AddJournalEntry appends to the journal and refreshes it.
func (f *Facade) AddJournalEntry(ctx context.Context, content, cardID, readingID string) (*deck.JournalEntry, error) {
	return mutate(ctx, f, ResourceJournal, "add journal entry", func(ctx context.Context) (*deck.JournalEntry, bool, error) {
		e, err := ops.AddJournalEntry(ctx, f.deps, ops.AddJournalInput{
			Owner:     f.owner,
			Content:   content,
			CardID:    cardID,
			ReadingID: readingID,
		})
		return e, err == nil, err
	})
}

// Reflect attaches a reflection to today's card.
func (f *Facade) Reflect(ctx context.Context, reflection string) (*deck.DailyCard, error) {
	return mutate(ctx, f, ResourceDaily, "reflect", func(ctx context.Context) (*deck.DailyCard, bool, error) {
		rec, err := ops.ReflectDaily(ctx, f.deps, ops.ReflectInput{Owner: f.owner, Reflection: reflection})
		return rec, err == nil, err
	})
}

// Cards lists the catalog. The catalog is static, so nothing is cached here.
func (f *Facade) Cards(ctx context.Context, input ops.ListCardsInput) ([]deck.Card, error) {
	out, err := ops.ListCards(ctx, f.deps, input)
	if err != nil {
		return nil, toFailure(ctx, f.log, ResourceCatalog, "list cards", err)
	}
	return out.Items, nil
}

// Card looks one card up.
func (f *Facade) Card(ctx context.Context, id string) (*deck.Card, bool, error) {
	c, found, err := ops.GetCard(ctx, f.deps, id)
	if err != nil {
		return nil, false, toFailure(ctx, f.log, ResourceCatalog, "get card", err)
	}
	return c, found, nil
}

// Spreads lists every spread layout.
func (f *Facade) Spreads(ctx context.Context) ([]deck.Spread, error) {
	spreads, err := ops.ListSpreads(ctx, f.deps)
	if err != nil {
		return nil, toFailure(ctx, f.log, ResourceCatalog, "list spreads", err)
	}
	return spreads, nil
}

// Spread looks one spread up.
func (f *Facade) Spread(ctx context.Context, id int) (*deck.Spread, bool, error) {
	s, found, err := ops.GetSpread(ctx, f.deps, id)
	if err != nil {
		return nil, false, toFailure(ctx, f.log, ResourceCatalog, "get spread", err)
	}
	return s, found, nil
}
