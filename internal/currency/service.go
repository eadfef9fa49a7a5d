package currency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"pricecatalog/internal/cache"
)

// MinStaleAfter is the shortest staleness window accepted for a rate table.
const MinStaleAfter = 10 * time.Minute

const defaultFetchTimeout = 30 * time.Second

var (
	// ErrUnknownCurrency is returned when selecting a code absent from the table.
	ErrUnknownCurrency = errors.New("currency not present in rate table")

	// ErrNoSource is returned by Refresh when no rate source is configured.
	ErrNoSource = errors.New("no currency rate source configured")

	// ErrEmptyRates is returned when a source answers without any rates.
	ErrEmptyRates = errors.New("currency source returned no exchange rates")
)

// State is one committed view of the rate table and display selection.
// A State is never modified after it has been published.
type State struct {
	Table           Table     `json:"table"`
	DisplayCurrency string    `json:"display_currency"`
	Available       []string  `json:"available"`
	Fingerprint     uint64    `json:"fingerprint"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Hooks receives refresh outcomes. Implemented by the metrics layer.
type Hooks interface {
	RefreshCompleted(result string, codes int)
}

// Options configures a Service.
type Options struct {
	Source       Source
	Cache        cache.Cache
	Base         string
	StaleAfter   time.Duration
	FetchTimeout time.Duration
	Hooks        Hooks
}

// Service owns the process-wide rate table and the selected display currency.
// Readers always observe a complete State.
type Service struct {
	state atomic.Pointer[State]

	mu       sync.Mutex // serializes commits
	selected bool

	subMu sync.RWMutex
	subs  map[string]func(State)

	refreshMu sync.Mutex

	source       Source
	cache        cache.Cache
	base         string
	staleAfter   time.Duration
	fetchTimeout time.Duration
	hooks        Hooks
	now          func() time.Time
}

// NewService creates a service holding a table with only the base currency.
// The table is considered stale until the first refresh or cache load.
func NewService(opts Options) *Service {
	base := Code(opts.Base)
	if base == "" {
		base = DefaultBase
	}
	staleAfter := opts.StaleAfter
	if staleAfter < MinStaleAfter {
		staleAfter = MinStaleAfter
	}
	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}

	s := &Service{
		subs:         make(map[string]func(State)),
		source:       opts.Source,
		cache:        opts.Cache,
		base:         base,
		staleAfter:   staleAfter,
		fetchTimeout: fetchTimeout,
		hooks:        opts.Hooks,
		now:          time.Now,
	}

	table := NewTable(base, nil)
	s.state.Store(&State{
		Table:           table,
		DisplayCurrency: base,
		Available:       table.Codes(),
		Fingerprint:     fingerprint(table),
	})
	return s
}

// State returns the latest committed state.
func (s *Service) State() State {
	return *s.state.Load()
}

// Fresh reports whether the committed table is within the staleness window.
func (s *Service) Fresh() bool {
	st := s.state.Load()
	if st.UpdatedAt.IsZero() {
		return false
	}
	return s.now().Sub(st.UpdatedAt) < s.staleAfter
}

// SetDisplayCurrency selects the display currency. The code must be present
// in the committed table.
func (s *Service) SetDisplayCurrency(code string) error {
	code = Code(code)

	s.mu.Lock()
	cur := s.state.Load()
	if !cur.Table.Has(code) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	s.selected = true
	if cur.DisplayCurrency == code {
		s.mu.Unlock()
		return nil
	}
	next := *cur
	next.DisplayCurrency = code
	s.state.Store(&next)
	s.mu.Unlock()

	s.notify(next)
	return nil
}

// ReplaceTable commits a new table wholesale. A user selection is kept if
// the new table still has it and otherwise resets to the table's base
// currency. Without a selection, preferred is used when convertible.
func (s *Service) ReplaceTable(table Table, available []string, preferred string) State {
	return s.commit(table, available, preferred, s.now())
}

func (s *Service) commit(table Table, available []string, preferred string, updatedAt time.Time) State {
	preferred = Code(preferred)

	s.mu.Lock()
	cur := s.state.Load()

	display := cur.DisplayCurrency
	switch {
	case s.selected && table.Has(display):
	case s.selected:
		// a dropped selection goes back to base, not to the source's preference
		display = table.Base
		s.selected = false
	case preferred != "" && table.Has(preferred):
		display = preferred
	case table.Has(display):
	default:
		display = table.Base
		s.selected = false
	}

	next := State{
		Table:           table,
		DisplayCurrency: display,
		Available:       restrictAvailable(table, available),
		Fingerprint:     fingerprint(table),
		UpdatedAt:       updatedAt,
	}
	s.state.Store(&next)
	s.mu.Unlock()

	if next.Fingerprint != cur.Fingerprint || next.DisplayCurrency != cur.DisplayCurrency {
		s.notify(next)
	}
	return next
}

// Subscribe registers fn to be called after every change of the committed
// state. It returns an id for Unsubscribe.
func (s *Service) Subscribe(fn func(State)) string {
	id := uuid.NewString()
	s.subMu.Lock()
	s.subs[id] = fn
	s.subMu.Unlock()
	return id
}

// Unsubscribe removes a subscription. It reports whether id was registered.
func (s *Service) Unsubscribe(id string) bool {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return false
	}
	delete(s.subs, id)
	return true
}

func (s *Service) notify(st State) {
	s.subMu.RLock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range fns {
		fn(st)
	}
}

// Refresh fetches a new table from the source and commits it. On failure the
// previous table stays in place.
func (s *Service) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if s.source == nil {
		return ErrNoSource
	}

	resp, err := s.source.Fetch(ctx)
	if err == nil && (resp == nil || len(resp.ExchangeRates) == 0) {
		err = ErrEmptyRates
	}
	if err != nil {
		s.report("error", len(s.state.Load().Table.Rates))
		return fmt.Errorf("refreshing currency rates: %w", err)
	}

	table, available, display := TableFromResponse(resp, s.base)
	st := s.commit(table, available, display, s.now())
	s.report("success", len(st.Table.Rates))

	slog.Info("currency rates refreshed",
		"base", st.Table.Base,
		"codes", len(st.Table.Rates),
		"display_currency", st.DisplayCurrency,
	)

	if err := s.SaveToCache(ctx); err != nil {
		slog.Warn("failed to save currency rates to cache", "error", err)
	}
	return nil
}

// EnsureFresh refreshes the table when it is older than the staleness window.
func (s *Service) EnsureFresh(ctx context.Context) error {
	if s.Fresh() {
		return nil
	}
	return s.Refresh(ctx)
}

// LoadFromCache commits the cached snapshot, keeping its original timestamp so
// staleness is judged against the time it was fetched. It returns the number
// of codes loaded.
func (s *Service) LoadFromCache(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}

	snapshot, err := s.cache.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read currency cache: %w", err)
	}
	if snapshot == nil || len(snapshot.Rates) == 0 {
		return 0, nil
	}

	table := NewTable(snapshot.Base, snapshot.Rates)
	st := s.commit(table, snapshot.Available, snapshot.DisplayCurrency, snapshot.UpdatedAt)
	return len(st.Table.Rates), nil
}

// SaveToCache writes the committed state to the cache.
func (s *Service) SaveToCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	st := s.state.Load()
	snapshot := &cache.RateSnapshot{
		Version:         cache.SnapshotVersion,
		UpdatedAt:       st.UpdatedAt,
		Base:            st.Table.Base,
		Rates:           st.Table.Rates,
		Available:       st.Available,
		DisplayCurrency: st.DisplayCurrency,
	}
	return s.cache.Set(ctx, snapshot)
}

// InitializeAsync loads any cached table for immediate use, then refreshes
// from the source in a background goroutine.
func (s *Service) InitializeAsync(ctx context.Context) {
	cached, err := s.LoadFromCache(ctx)
	if err != nil {
		slog.Warn("failed to load currency rates from cache", "error", err)
	} else if cached > 0 {
		slog.Info("serving cached currency rates while refreshing", "codes", cached)
	}

	go func() {
		fetchCtx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
		defer cancel()

		if err := s.Refresh(fetchCtx); err != nil {
			slog.Warn("initial currency refresh failed", "error", err)
		}
	}()
}

// StartBackgroundRefresh refreshes the table periodically. The returned
// function stops the loop.
func (s *Service) StartBackgroundRefresh(interval time.Duration) func() {
	if interval < MinStaleAfter {
		interval = MinStaleAfter
	}
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refreshCtx, refreshCancel := context.WithTimeout(ctx, s.fetchTimeout)
				if err := s.Refresh(refreshCtx); err != nil {
					slog.Warn("background currency refresh failed", "error", err)
				}
				refreshCancel()
			}
		}
	}()

	return cancel
}

func (s *Service) report(result string, codes int) {
	if s.hooks != nil {
		s.hooks.RefreshCompleted(result, codes)
	}
}

// restrictAvailable keeps the convertible codes of available, in order and
// without duplicates. An empty result means every table code is available.
func restrictAvailable(table Table, available []string) []string {
	out := make([]string, 0, len(available))
	for _, code := range available {
		code = Code(code)
		if table.Has(code) && !slices.Contains(out, code) {
			out = append(out, code)
		}
	}
	if len(out) == 0 {
		return table.Codes()
	}
	return out
}

func fingerprint(table Table) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(table.Base)
	for _, code := range table.Codes() {
		_, _ = d.WriteString("|" + code + "=")
		_, _ = d.WriteString(strconv.FormatUint(math.Float64bits(table.Rates[code]), 16))
	}
	return d.Sum64()
}
