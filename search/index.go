// Package search filters item lists by substring over configured fields.
package search

import (
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/zkx401/pulse/pkg/clock"
)

// Default configuration values
const (
	DefaultDebounce  = 300 * time.Millisecond
	DefaultMinLength = 2
	DefaultOpenMark  = "<mark>"
	DefaultCloseMark = "</mark>"
	MaxSuggestions   = 5
	MaxHistory       = 10
	MaxDidYouMean    = 3
)

// Field extracts one searchable string from an item
type Field[T any] struct {
	Name  string
	Value func(T) string
}

// Highlighted is a display-only copy of a matching item. Fields holds the
// marked-up value of every field that matched.
type Highlighted[T any] struct {
	Item   T                 `json:"item"`
	Fields map[string]string `json:"fields"`
}

// Result is a consistent view of one query
type Result[T any] struct {
	Query       string           `json:"query"`
	Items       []T              `json:"results"`
	Highlighted []Highlighted[T] `json:"highlighted,omitempty"`
	Count       int              `json:"resultCount"`
	Suggestions []string         `json:"suggestions"`
	DidYouMean  []string         `json:"didYouMean,omitempty"`
	History     []string         `json:"searchHistory"`
	Searching   bool             `json:"isSearching"`
}

type config struct {
	clock         clock.Clock
	debounce      time.Duration
	minLength     int
	caseSensitive bool
	highlight     bool
	openMark      string
	closeMark     string
}

// Option configures an Index
type Option func(*config)

// WithDebounce sets how long Searching stays true after a query change
func WithDebounce(d time.Duration) Option {
	return func(c *config) { c.debounce = d }
}

// WithMinLength sets the query length below which nothing is filtered
func WithMinLength(n int) Option {
	return func(c *config) { c.minLength = n }
}

// WithCaseSensitive disables case folding
func WithCaseSensitive(on bool) Option {
	return func(c *config) { c.caseSensitive = on }
}

// WithHighlight enables or disables highlighted copies
func WithHighlight(on bool) Option {
	return func(c *config) { c.highlight = on }
}

// WithMarks sets the markup wrapped around highlighted matches
func WithMarks(open, closing string) Option {
	return func(c *config) {
		c.openMark = open
		c.closeMark = closing
	}
}

// WithClock injects a custom Clock (e.g., for testing)
func WithClock(clk clock.Clock) Option {
	return func(c *config) { c.clock = clk }
}

type memo[T any] struct {
	query       string
	version     uint64
	items       []T
	highlighted []Highlighted[T]
	suggestions []string
	didYouMean  []string
}

// Index holds an item list, the active query and the query history.
// It is safe for concurrent use.
type Index[T any] struct {
	cfg    config
	fields []Field[T]

	mu        sync.Mutex
	items     []T
	version   uint64
	query     string
	changedAt time.Time
	history   []string
	cache     *memo[T]
}

// NewIndex creates an Index over items searching the given fields
func NewIndex[T any](items []T, fields []Field[T], opts ...Option) *Index[T] {
	cfg := config{
		clock:     clock.SystemClock{},
		debounce:  DefaultDebounce,
		minLength: DefaultMinLength,
		highlight: true,
		openMark:  DefaultOpenMark,
		closeMark: DefaultCloseMark,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Index[T]{cfg: cfg, fields: fields, items: items}
}

// SetItems replaces the source list
func (ix *Index[T]) SetItems(items []T) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.items = items
	ix.version++
}

// SetQuery updates the active query. Queries that reach the minimum length
// are recorded in the history.
func (ix *Index[T]) SetQuery(q string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.setQuery(q)
}

func (ix *Index[T]) setQuery(q string) {
	ix.query = q
	ix.changedAt = ix.cfg.clock.Now()
	if ix.accepted(q) {
		ix.history = slices.DeleteFunc(ix.history, func(h string) bool { return h == q })
		ix.history = slices.Insert(ix.history, 0, q)
		if len(ix.history) > MaxHistory {
			ix.history = ix.history[:MaxHistory]
		}
	}
}

// Clear resets the query
func (ix *Index[T]) Clear() {
	ix.SetQuery("")
}

// Query returns the active query
func (ix *Index[T]) Query() string {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.query
}

// Searching reports whether the query changed within the debounce window
func (ix *Index[T]) Searching() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.searching()
}

func (ix *Index[T]) searching() bool {
	if ix.changedAt.IsZero() {
		return false
	}
	return ix.cfg.clock.Now().Sub(ix.changedAt) < ix.cfg.debounce
}

// Results returns the items matching the query, or the source list
// unchanged when the query is shorter than the minimum.
func (ix *Index[T]) Results() []T {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.derive().items
}

// Highlighted returns marked-up copies of the matching items
func (ix *Index[T]) Highlighted() []Highlighted[T] {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.derive().highlighted
}

// Suggestions returns up to five lower-cased field values containing the query
func (ix *Index[T]) Suggestions() []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return slices.Clone(ix.derive().suggestions)
}

// DidYouMean returns the field values closest to a query that matched nothing
func (ix *Index[T]) DidYouMean() []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return slices.Clone(ix.derive().didYouMean)
}

// History returns accepted queries, most recent first
func (ix *Index[T]) History() []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return slices.Clone(ix.history)
}

// Search sets the query and returns everything derived from it
func (ix *Index[T]) Search(q string) Result[T] {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.setQuery(q)
	m := ix.derive()
	return Result[T]{
		Query:       q,
		Items:       m.items,
		Highlighted: m.highlighted,
		Count:       len(m.items),
		Suggestions: slices.Clone(m.suggestions),
		DidYouMean:  slices.Clone(m.didYouMean),
		History:     slices.Clone(ix.history),
		Searching:   ix.searching(),
	}
}

func (ix *Index[T]) accepted(q string) bool {
	return q != "" && utf8.RuneCountInString(q) >= ix.cfg.minLength
}

// derive returns the memoized results for the current query and items
func (ix *Index[T]) derive() *memo[T] {
	if ix.cache != nil && ix.cache.query == ix.query && ix.cache.version == ix.version {
		return ix.cache
	}

	m := &memo[T]{query: ix.query, version: ix.version, items: ix.items}
	if ix.accepted(ix.query) {
		m.items = ix.filter()
		m.suggestions = ix.suggest()
		if ix.cfg.highlight {
			m.highlighted = ix.highlight(m.items)
		}
		if len(m.items) == 0 {
			m.didYouMean = ix.closest()
		}
	}
	ix.cache = m
	return m
}

func (ix *Index[T]) fold(s string) string {
	if ix.cfg.caseSensitive {
		return s
	}
	return strings.ToLower(s)
}

func (ix *Index[T]) filter() []T {
	needle := ix.fold(ix.query)
	out := make([]T, 0)
	for _, item := range ix.items {
		for _, f := range ix.fields {
			if strings.Contains(ix.fold(f.Value(item)), needle) {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

func (ix *Index[T]) suggest() []string {
	needle := strings.ToLower(ix.query)
	seen := make(map[string]struct{})
	out := make([]string, 0, MaxSuggestions)
	for _, item := range ix.items {
		for _, f := range ix.fields {
			v := strings.ToLower(f.Value(item))
			if _, dup := seen[v]; dup || !strings.Contains(v, needle) {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
			if len(out) == MaxSuggestions {
				return out
			}
		}
	}
	return out
}

func (ix *Index[T]) highlight(items []T) []Highlighted[T] {
	out := make([]Highlighted[T], 0, len(items))
	for _, item := range items {
		h := Highlighted[T]{Item: item, Fields: make(map[string]string)}
		for _, f := range ix.fields {
			if marked, ok := mark(f.Value(item), ix.query, ix.cfg); ok {
				h.Fields[f.Name] = marked
			}
		}
		out = append(out, h)
	}
	return out
}

// mark wraps every occurrence of query in value, keeping the original casing
func mark(value, query string, cfg config) (string, bool) {
	fold := func(r rune) rune { return r }
	if !cfg.caseSensitive {
		fold = unicode.ToLower
	}

	hay := []rune(value)
	needle := []rune(query)
	for i := range needle {
		needle[i] = fold(needle[i])
	}

	var b strings.Builder
	found := false
	for i := 0; i < len(hay); {
		if matchAt(hay, needle, i, fold) {
			b.WriteString(cfg.openMark)
			b.WriteString(string(hay[i : i+len(needle)]))
			b.WriteString(cfg.closeMark)
			i += len(needle)
			found = true
			continue
		}
		b.WriteRune(hay[i])
		i++
	}
	return b.String(), found
}

func matchAt(hay, needle []rune, at int, fold func(rune) rune) bool {
	if len(needle) == 0 || at+len(needle) > len(hay) {
		return false
	}
	for j, r := range needle {
		if fold(hay[at+j]) != r {
			return false
		}
	}
	return true
}

// closest ranks distinct field values by edit distance to the query
func (ix *Index[T]) closest() []string {
	needle := strings.ToLower(ix.query)
	limit := max(2, utf8.RuneCountInString(needle)/2)

	type candidate struct {
		value    string
		distance int
	}
	seen := make(map[string]struct{})
	var candidates []candidate
	for _, item := range ix.items {
		for _, f := range ix.fields {
			v := strings.ToLower(f.Value(item))
			if _, dup := seen[v]; dup || v == "" {
				continue
			}
			seen[v] = struct{}{}
			if d := levenshtein.ComputeDistance(needle, v); d <= limit {
				candidates = append(candidates, candidate{value: v, distance: d})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].value < candidates[j].value
	})

	out := make([]string, 0, MaxDidYouMean)
	for _, c := range candidates {
		if len(out) == MaxDidYouMean {
			break
		}
		out = append(out, c.value)
	}
	return out
}
