// Package tagset implements the key/value tag collections used to filter
// and group time series, including OpenTSDB's trailing-wildcard match.
package tagset

import (
	"sort"
	"strings"
)

// Tag is a single key/value pair attached to a series.
type Tag struct {
	Key   string
	Value string
}

// IsWildcard reports whether a tag value is a wildcard match: its last
// character is '*'. No other glob semantics are supported.
func IsWildcard(value string) bool {
	return strings.HasSuffix(value, "*")
}

// List is a keyed collection of tags. Duplicate keys are disallowed.
// Order is insertion order; use Sorted for a canonical ordering.
type List struct {
	tags []Tag
}

// New builds a List from a plain map, sorted by key for a canonical
// ordering (used when interning a series key).
func New(m map[string]string) List {
	l := List{tags: make([]Tag, 0, len(m))}
	for k, v := range m {
		l.tags = append(l.tags, Tag{Key: k, Value: v})
	}
	l.sort()
	return l
}

// Set adds or replaces the value for key.
func (l *List) Set(key, value string) {
	for i := range l.tags {
		if l.tags[i].Key == key {
			l.tags[i].Value = value
			return
		}
	}
	l.tags = append(l.tags, Tag{Key: key, Value: value})
}

// Delete removes key if present.
func (l *List) Delete(key string) {
	for i := range l.tags {
		if l.tags[i].Key == key {
			l.tags = append(l.tags[:i], l.tags[i+1:]...)
			return
		}
	}
}

// Get returns the value for key and whether it was present.
func (l List) Get(key string) (string, bool) {
	for _, t := range l.tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// Has reports whether key is present.
func (l List) Has(key string) bool {
	_, ok := l.Get(key)
	return ok
}

// Len returns the number of tags.
func (l List) Len() int { return len(l.tags) }

// Each calls fn for every tag in the list.
func (l List) Each(fn func(k, v string)) {
	for _, t := range l.tags {
		fn(t.Key, t.Value)
	}
}

// Keys returns the set of tag keys.
func (l List) Keys() []string {
	keys := make([]string, len(l.tags))
	for i, t := range l.tags {
		keys[i] = t.Key
	}
	return keys
}

// Clone returns an independent copy of the list.
func (l List) Clone() List {
	out := List{tags: make([]Tag, len(l.tags))}
	copy(out.tags, l.tags)
	return out
}

// Sorted returns the tags ordered by key, for canonical series keys.
func (l List) Sorted() []Tag {
	out := make([]Tag, len(l.tags))
	copy(out, l.tags)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (l *List) sort() {
	sort.Slice(l.tags, func(i, j int) bool { return l.tags[i].Key < l.tags[j].Key })
}

// WildcardKeys returns the keys among l whose value ends in '*'.
func (l List) WildcardKeys() map[string]bool {
	out := make(map[string]bool)
	for _, t := range l.tags {
		if IsWildcard(t.Value) {
			out[t.Key] = true
		}
	}
	return out
}

// Matches reports whether a concrete tag value satisfies a query filter
// value: exact match, or a trailing-wildcard prefix match.
func Matches(filterValue, actual string) bool {
	if IsWildcard(filterValue) {
		prefix := strings.TrimSuffix(filterValue, "*")
		return strings.HasPrefix(actual, prefix)
	}
	return filterValue == actual
}

// MatchesFilter reports whether actual carries every tag named in
// filter, each satisfying Matches for that tag's value. actual may
// carry additional tags not named in filter; an empty filter matches
// any tag set.
func MatchesFilter(filter, actual List) bool {
	for _, f := range filter.tags {
		v, ok := actual.Get(f.Key)
		if !ok || !Matches(f.Value, v) {
			return false
		}
	}
	return true
}

// CanonicalKey builds the stable per-series string key used to dedupe
// physical series fragments across shards: metric name followed by its
// tags in sorted key order.
func CanonicalKey(metric string, tags List) string {
	var b strings.Builder
	b.WriteString(metric)
	for _, t := range tags.Sorted() {
		b.WriteByte('{')
		b.WriteString(t.Key)
		b.WriteByte('=')
		b.WriteString(t.Value)
		b.WriteByte('}')
	}
	return b.String()
}
