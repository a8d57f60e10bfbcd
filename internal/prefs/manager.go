package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"cryptomirror/internal/catalog"
	"cryptomirror/internal/common"
	"cryptomirror/pkg/binance"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Backend stores the serialized state under a single key.
// Load reports ok=false when nothing has been saved yet.
type Backend interface {
	Load(ctx context.Context) (data []byte, ok bool, err error)
	Save(ctx context.Context, data []byte) error
}

// Manager owns the preferences state. Reads never fail: a missing or
// unreadable record yields defaults. Writes are best effort: backend errors
// are logged and the in-memory state still changes.
type Manager struct {
	backend Backend
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
	newID   func() string

	mu    sync.Mutex
	state State
}

func NewManager(backend Backend, logger *zap.Logger) *Manager {
	m := &Manager{
		backend: backend,
		logger:  logger.Named("prefs"),
		timeout: 5 * time.Second,
		now:     time.Now,
		newID:   func() string { return "watchlist-" + uuid.NewString() },
	}
	m.state = DefaultState(m.now().UnixMilli())
	return m
}

// Load reads the persisted state, falling back to defaults.
func (m *Manager) Load(ctx context.Context) State {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	st := DefaultState(m.now().UnixMilli())

	data, ok, err := m.backend.Load(ctx)
	switch {
	case err != nil:
		m.logger.Warn("failed to load preferences, using defaults", common.Code(common.ErrCodePersistenceFailed), zap.Error(err))
	case !ok:
		m.logger.Info("no saved preferences, using defaults")
	default:
		var saved State
		if err := json.Unmarshal(data, &saved); err != nil {
			m.logger.Warn("corrupt preferences, using defaults", common.Code(common.ErrCodePersistenceFailed), zap.Error(err))
		} else {
			st = m.repair(saved, st)
		}
	}

	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
	return st.clone()
}

// repair fills in whatever part of a saved record is missing or invalid.
func (m *Manager) repair(saved, def State) State {
	if !saved.Layout.IsValid() {
		saved.Layout = def.Layout
	}

	charts := saved.Charts[:0:0]
	for _, c := range saved.Charts {
		c.Symbol = strings.ToLower(c.Symbol)
		if c.ID == "" || c.Symbol == "" || !c.Resolution.IsValid() {
			continue
		}
		charts = append(charts, c)
	}
	if len(charts) == 0 {
		charts = DefaultCharts(saved.Layout)
	}
	saved.Charts = charts

	if saved.Watchlists == nil {
		saved.Watchlists = def.Watchlists
	}
	return saved
}

// Save persists the current state.
func (m *Manager) Save(ctx context.Context) {
	m.mu.Lock()
	st := m.state.clone()
	m.mu.Unlock()
	m.persist(ctx, st)
}

func (m *Manager) persist(ctx context.Context, st State) {
	data, err := json.Marshal(st)
	if err != nil {
		m.logger.Error(common.ErrMsgPersistenceFailed.String(), common.Code(common.ErrCodePersistenceFailed), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.backend.Save(ctx, data); err != nil {
		m.logger.Error(common.ErrMsgPersistenceFailed.String(), common.Code(common.ErrCodePersistenceFailed), zap.Error(err))
	}
}

// update applies fn under the lock and persists the result if fn succeeded.
func (m *Manager) update(ctx context.Context, fn func(st *State) error) (State, error) {
	m.mu.Lock()
	next := m.state.clone()
	if err := fn(&next); err != nil {
		m.mu.Unlock()
		return State{}, err
	}
	m.state = next
	out := next.clone()
	m.mu.Unlock()

	m.persist(ctx, out)
	return out, nil
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *Manager) Layout() Layout {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Layout
}

func (m *Manager) Charts() []ChartConfig {
	return m.State().Charts
}

func (m *Manager) Watchlists() []Watchlist {
	return m.State().Watchlists
}

// SetLayout switches the grid. Panels that exist in both layouts keep
// their symbol and resolution by position.
func (m *Manager) SetLayout(ctx context.Context, l Layout) (State, error) {
	if !l.IsValid() {
		return State{}, fmt.Errorf("%w: %q", ErrInvalidLayout, l)
	}
	return m.update(ctx, func(st *State) error {
		next := DefaultCharts(l)
		for i := range next {
			if i < len(st.Charts) {
				next[i].Symbol = st.Charts[i].Symbol
				next[i].Resolution = st.Charts[i].Resolution
			}
		}
		st.Layout = l
		st.Charts = next
		return nil
	})
}

func (m *Manager) UpdateChartSymbol(ctx context.Context, chartID, symbol string) (State, error) {
	symbol = strings.ToLower(strings.TrimSpace(symbol))
	if symbol == "" {
		return State{}, fmt.Errorf("%w: empty symbol", ErrInvalidInput)
	}
	return m.update(ctx, func(st *State) error {
		c := findChart(st, chartID)
		if c == nil {
			return fmt.Errorf("chart %q: %w", chartID, ErrNotFound)
		}
		c.Symbol = symbol
		return nil
	})
}

func (m *Manager) UpdateChartResolution(ctx context.Context, chartID string, res binance.Resolution) (State, error) {
	if !res.IsValid() {
		return State{}, fmt.Errorf("%w: resolution %q", ErrInvalidInput, res)
	}
	return m.update(ctx, func(st *State) error {
		c := findChart(st, chartID)
		if c == nil {
			return fmt.Errorf("chart %q: %w", chartID, ErrNotFound)
		}
		c.Resolution = res
		return nil
	})
}

func findChart(st *State, id string) *ChartConfig {
	for i := range st.Charts {
		if st.Charts[i].ID == id {
			return &st.Charts[i]
		}
	}
	return nil
}

func findWatchlist(st *State, id string) *Watchlist {
	for i := range st.Watchlists {
		if st.Watchlists[i].ID == id {
			return &st.Watchlists[i]
		}
	}
	return nil
}

func (m *Manager) AddWatchlist(ctx context.Context, title, icon string) (Watchlist, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Watchlist{}, fmt.Errorf("%w: empty title", ErrInvalidInput)
	}

	w := Watchlist{
		ID:        m.newID(),
		Title:     title,
		Icon:      icon,
		Symbols:   []string{},
		CreatedAt: m.now().UnixMilli(),
	}
	_, err := m.update(ctx, func(st *State) error {
		st.Watchlists = append(st.Watchlists, w)
		return nil
	})
	return w, err
}

// RemoveWatchlist deletes a user-created list. Default lists are kept.
func (m *Manager) RemoveWatchlist(ctx context.Context, id string) error {
	_, err := m.update(ctx, func(st *State) error {
		for i, w := range st.Watchlists {
			if w.ID != id {
				continue
			}
			if w.IsDefault {
				return ErrDefaultWatchlist
			}
			st.Watchlists = append(st.Watchlists[:i], st.Watchlists[i+1:]...)
			return nil
		}
		return fmt.Errorf("watchlist %q: %w", id, ErrNotFound)
	})
	return err
}

func (m *Manager) RenameWatchlist(ctx context.Context, id, title, icon string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: empty title", ErrInvalidInput)
	}
	_, err := m.update(ctx, func(st *State) error {
		w := findWatchlist(st, id)
		if w == nil {
			return fmt.Errorf("watchlist %q: %w", id, ErrNotFound)
		}
		w.Title = title
		if icon != "" {
			w.Icon = icon
		}
		return nil
	})
	return err
}

// AddToken appends a catalog token to a list; adding one already present is a no-op.
func (m *Manager) AddToken(ctx context.Context, id, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !catalog.IsKnownShort(symbol) {
		return fmt.Errorf("%w: %q", ErrUnknownToken, symbol)
	}
	_, err := m.update(ctx, func(st *State) error {
		w := findWatchlist(st, id)
		if w == nil {
			return fmt.Errorf("watchlist %q: %w", id, ErrNotFound)
		}
		if !w.has(symbol) {
			w.Symbols = append(w.Symbols, symbol)
		}
		return nil
	})
	return err
}

func (m *Manager) RemoveToken(ctx context.Context, id, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	_, err := m.update(ctx, func(st *State) error {
		w := findWatchlist(st, id)
		if w == nil {
			return fmt.Errorf("watchlist %q: %w", id, ErrNotFound)
		}
		kept := w.Symbols[:0]
		for _, s := range w.Symbols {
			if s != symbol {
				kept = append(kept, s)
			}
		}
		w.Symbols = kept
		return nil
	})
	return err
}

// ToggleFavorite flips symbol's membership in the favorites list and
// reports whether it is now a favorite.
func (m *Manager) ToggleFavorite(ctx context.Context, symbol string) (bool, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !catalog.IsKnownShort(symbol) {
		return false, fmt.Errorf("%w: %q", ErrUnknownToken, symbol)
	}

	var now bool
	_, err := m.update(ctx, func(st *State) error {
		w := findWatchlist(st, FavoritesID)
		if w == nil {
			return fmt.Errorf("watchlist %q: %w", FavoritesID, ErrNotFound)
		}
		if w.has(symbol) {
			kept := w.Symbols[:0]
			for _, s := range w.Symbols {
				if s != symbol {
					kept = append(kept, s)
				}
			}
			w.Symbols = kept
			now = false
		} else {
			w.Symbols = append(w.Symbols, symbol)
			now = true
		}
		return nil
	})
	return now, err
}
