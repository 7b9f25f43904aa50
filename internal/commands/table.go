package commands

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	cerrors "github.com/p-blackswan/chatkeeper/internal/errors"
)

// Table stores user-defined commands keyed by normalized name.
type Table struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	reserved func(name string) bool
	logger   zerolog.Logger
}

// NewTable creates an empty table. Names for which reserved returns true
// cannot be added.
func NewTable(reserved func(name string) bool, logger zerolog.Logger) *Table {
	if reserved == nil {
		reserved = func(string) bool { return false }
	}
	return &Table{
		entries:  make(map[string]*entry),
		reserved: reserved,
		logger:   logger.With().Str("component", "command-table").Logger(),
	}
}

// Add inserts a new command. Usage fields are reset.
func (t *Table) Add(def Definition) error {
	def.Name = NormalizeName(def.Name)
	def.LastUsedAt = time.Time{}
	def.UseCount = 0
	if err := def.Validate(); err != nil {
		return err
	}
	if t.reserved(def.Name) {
		return cerrors.NewCommandError(def.Name, cerrors.ErrReservedName)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[def.Name]; ok {
		return cerrors.NewCommandError(def.Name, cerrors.ErrCommandExists)
	}
	t.entries[def.Name] = &entry{def: def}
	t.logger.Info().Str("command", def.Name).Str("level", def.Level.String()).Msg("command added")
	return nil
}

// Edit applies patch to an existing command. An invalid patch leaves the
// command unchanged.
func (t *Table) Edit(name string, patch Patch) error {
	name = NormalizeName(name)
	e := t.lookup(name)
	if e == nil {
		return cerrors.NewCommandError(name, cerrors.ErrNoSuchCommand)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	next := patch.apply(e.def)
	if err := next.Validate(); err != nil {
		return err
	}
	e.def = next
	t.logger.Info().Str("command", name).Msg("command edited")
	return nil
}

// Delete removes a command.
func (t *Table) Delete(name string) error {
	name = NormalizeName(name)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[name]; !ok {
		return cerrors.NewCommandError(name, cerrors.ErrNoSuchCommand)
	}
	delete(t.entries, name)
	t.logger.Info().Str("command", name).Msg("command deleted")
	return nil
}

// Get returns a copy of the named command.
func (t *Table) Get(name string) (Definition, bool) {
	e := t.lookup(NormalizeName(name))
	if e == nil {
		return Definition{}, false
	}
	return e.snapshot(), true
}

// List returns copies of every command sorted by name.
func (t *Table) List() []Definition {
	t.mu.RLock()
	entries := make([]*entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	out := make([]Definition, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	sortDefinitions(out)
	return out
}

// Len returns the number of commands.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Restore replaces the table with defs, keeping usage counters. Invalid or
// reserved entries are skipped and logged.
func (t *Table) Restore(defs []Definition) int {
	next := make(map[string]*entry, len(defs))
	for _, def := range defs {
		def.Name = NormalizeName(def.Name)
		if err := def.Validate(); err != nil {
			t.logger.Warn().Err(err).Str("command", def.Name).Msg("skipping invalid command")
			continue
		}
		if t.reserved(def.Name) {
			t.logger.Warn().Str("command", def.Name).Msg("skipping command shadowing a builtin")
			continue
		}
		next[def.Name] = &entry{def: def}
	}

	t.mu.Lock()
	t.entries = next
	t.mu.Unlock()
	return len(next)
}

func (t *Table) lookup(name string) *entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries[name]
}

func sortDefinitions(defs []Definition) {
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
}
