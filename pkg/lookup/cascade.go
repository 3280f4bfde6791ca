package lookup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gabrielmiguelok/tropa/pkg/logging"
)

// Cascade errors.
var (
	ErrNoLevels      = errors.New("lookup: cascade has no levels")
	ErrUnknownLevel  = errors.New("lookup: unknown level")
	ErrUnknownOption = errors.New("lookup: option not available")
	ErrParentMissing = errors.New("lookup: parent level has no selection")
)

// Level binds one selector of the chain to a record field and its Source.
type Level struct {
	// Name identifies the level in logs and metrics, e.g. "region".
	Name string

	// Field is the record field holding the selected option id.
	Field string

	Source Source
}

// State is what the renderer needs to draw one selector.
type State struct {
	Loading  bool
	Options  []Option
	Err      error
	Disabled bool
	Selected string
}

// Label returns the label of the selected option, or "".
func (s State) Label() string {
	for _, o := range s.Options {
		if o.ID == s.Selected {
			return o.Label
		}
	}
	return ""
}

// Cascade is an ordered chain of dependent selectors. Selecting an option at
// one level clears every deeper level and reloads the level below.
// A level whose load failed is disabled with its error exposed; it never
// affects anything outside the chain.
type Cascade struct {
	levels []Level
	states []State
	gen    []uint64
	logger logging.Logger
	mu     sync.Mutex
}

// NewCascade builds a cascade. Every level starts disabled and empty until
// Load is called.
func NewCascade(logger logging.Logger, levels ...Level) (*Cascade, error) {
	if len(levels) == 0 {
		return nil, ErrNoLevels
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	c := &Cascade{
		levels: append([]Level(nil), levels...),
		states: make([]State, len(levels)),
		gen:    make([]uint64, len(levels)),
		logger: logger,
	}
	for i := range c.states {
		c.states[i].Disabled = true
	}
	return c, nil
}

// Levels returns the configured levels.
func (c *Cascade) Levels() []Level {
	return append([]Level(nil), c.levels...)
}

// IndexOf returns the level bound to a record field.
func (c *Cascade) IndexOf(field string) (int, bool) {
	for i, l := range c.levels {
		if l.Field == field {
			return i, true
		}
	}
	return -1, false
}

// State returns a snapshot of level i.
func (c *Cascade) State(i int) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.states) {
		return State{Disabled: true}
	}
	st := c.states[i]
	st.Options = append([]Option(nil), st.Options...)
	return st
}

// Selection returns the selected id of every level.
func (c *Cascade) Selection() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.states))
	for i, st := range c.states {
		out[i] = st.Selected
	}
	return out
}

// Load fetches the root options.
func (c *Cascade) Load(ctx context.Context) error {
	return c.load(ctx, 0, "")
}

// Check reports whether id can be selected at level i right now, without
// changing any state. Options of a level that is still loading are unknown.
func (c *Cascade) Check(i int, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkLocked(i, id)
}

func (c *Cascade) checkLocked(i int, id string) error {
	if i < 0 || i >= len(c.levels) {
		return fmt.Errorf("%w: %d", ErrUnknownLevel, i)
	}
	if id == "" {
		return nil
	}
	if i > 0 && c.states[i-1].Selected == "" {
		return ErrParentMissing
	}
	if !hasOption(c.states[i].Options, id) {
		return fmt.Errorf("%w: %s %q", ErrUnknownOption, c.levels[i].Name, id)
	}
	return nil
}

// Select stores id as the selection of level i, clears every deeper level
// and loads the options of level i+1. An empty id clears the level.
func (c *Cascade) Select(ctx context.Context, i int, id string) error {
	c.mu.Lock()
	if err := c.checkLocked(i, id); err != nil {
		c.mu.Unlock()
		return err
	}

	c.states[i].Selected = id
	for j := i + 1; j < len(c.states); j++ {
		c.gen[j]++
		c.states[j] = State{Disabled: true}
	}
	c.mu.Unlock()

	if id == "" || i+1 >= len(c.levels) {
		return nil
	}
	return c.load(ctx, i+1, id)
}

// Hydrate restores a stored selection chain, loading each level from its
// parent. It stops at the first empty or unavailable id.
func (c *Cascade) Hydrate(ctx context.Context, ids ...string) error {
	if err := c.Load(ctx); err != nil {
		return err
	}
	for i, id := range ids {
		if i >= len(c.levels) || id == "" {
			return nil
		}
		if err := c.Select(ctx, i, id); err != nil {
			return err
		}
	}
	return nil
}

// Begin marks level i+1 as loading for a selection made at level i without
// fetching. Callers that load in the background use it to render the
// intermediate state before Select runs.
func (c *Cascade) Begin(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for j := i + 1; j < len(c.states); j++ {
		c.states[j] = State{Disabled: true}
	}
	if i+1 < len(c.states) {
		c.states[i+1].Loading = true
	}
}

func (c *Cascade) load(ctx context.Context, i int, parentID string) error {
	c.mu.Lock()
	c.gen[i]++
	gen := c.gen[i]
	c.states[i] = State{Loading: true, Disabled: true}
	level := c.levels[i]
	c.mu.Unlock()

	opts, err := level.Source.ListOptions(ctx, parentID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen[i] != gen {
		// A newer selection superseded this load.
		return nil
	}
	if err != nil {
		c.states[i] = State{Err: err, Disabled: true}
		c.logger.Warn("lookup load failed",
			logging.String("level", level.Name),
			logging.String("parent", parentID),
			logging.Err(err),
		)
		return fmt.Errorf("load %s: %w", level.Name, err)
	}
	c.states[i] = State{Options: opts}
	return nil
}

func hasOption(opts []Option, id string) bool {
	for _, o := range opts {
		if o.ID == id {
			return true
		}
	}
	return false
}
