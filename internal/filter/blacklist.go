package filter

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	cerrors "github.com/p-blackswan/chatkeeper/internal/errors"
)

// Blacklist is a set of exact-match words.
type Blacklist struct {
	mu    sync.RWMutex
	words map[string]struct{}
}

// NewBlacklist creates a blacklist seeded with words.
func NewBlacklist(words ...string) *Blacklist {
	b := &Blacklist{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		_ = b.Add(w)
	}
	return b
}

// Add inserts word. Words containing spaces could never match a
// space-split token, so they are rejected.
func (b *Blacklist) Add(word string) error {
	if strings.TrimSpace(word) == "" || strings.Contains(word, " ") {
		return fmt.Errorf("%w: blacklist word %q", cerrors.ErrInvalidArgument, word)
	}
	b.mu.Lock()
	b.words[word] = struct{}{}
	b.mu.Unlock()
	return nil
}

// Remove deletes word and reports whether it was present.
func (b *Blacklist) Remove(word string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.words[word]
	delete(b.words, word)
	return ok
}

// Contains reports whether word is blacklisted.
func (b *Blacklist) Contains(word string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.words[word]
	return ok
}

// Words returns the blacklist sorted.
func (b *Blacklist) Words() []string {
	b.mu.RLock()
	out := make([]string, 0, len(b.words))
	for w := range b.words {
		out = append(out, w)
	}
	b.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Replace swaps the whole set, skipping invalid words.
func (b *Blacklist) Replace(words []string) {
	next := make(map[string]struct{}, len(words))
	for _, w := range words {
		if strings.TrimSpace(w) == "" || strings.Contains(w, " ") {
			continue
		}
		next[w] = struct{}{}
	}
	b.mu.Lock()
	b.words = next
	b.mu.Unlock()
}

// Len returns the number of words.
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.words)
}
