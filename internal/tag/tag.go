// Package tag carries track metadata from container readers to catalogs.
package tag

import (
	"log/slog"
	"strings"
	"time"
)

// Type identifies a well-known tag
type Type int

const (
	Track Type = iota
	Title
	Artist
	Album
	Comment
)

// String returns the lowercase tag name
func (t Type) String() string {
	switch t {
	case Track:
		return "track"
	case Title:
		return "title"
	case Artist:
		return "artist"
	case Album:
		return "album"
	case Comment:
		return "comment"
	default:
		return "unknown"
	}
}

// Handler receives metadata as it is discovered
type Handler interface {
	OnTag(t Type, value string)
	OnDuration(d time.Duration)
	OnPair(name, value string)
}

// Item is a single tag value
type Item struct {
	Type  Type
	Value string
}

// Pair is a free-form name/value attribute such as "codec"
type Pair struct {
	Name  string
	Value string
}

// Tag is an immutable metadata set produced by a Builder
type Tag struct {
	Items    []Item
	Pairs    []Pair
	Duration time.Duration
}

// Get returns the first value of type t
func (t Tag) Get(typ Type) (string, bool) {
	for _, item := range t.Items {
		if item.Type == typ {
			return item.Value, true
		}
	}
	return "", false
}

// Pair returns the value of the named pair, compared case-insensitively
func (t Tag) Pair(name string) (string, bool) {
	for _, p := range t.Pairs {
		if strings.EqualFold(p.Name, name) {
			return p.Value, true
		}
	}
	return "", false
}

// Builder accumulates metadata and commits it into a Tag
type Builder struct {
	current Tag
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{}
}

// OnTag appends a tag value, ignoring empty strings
func (b *Builder) OnTag(t Type, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	b.current.Items = append(b.current.Items, Item{Type: t, Value: value})
}

// OnDuration records the duration
func (b *Builder) OnDuration(d time.Duration) {
	b.current.Duration = d
}

// OnPair appends a name/value pair
func (b *Builder) OnPair(name, value string) {
	if name == "" {
		slog.Debug("ignoring tag pair with empty name", "value", value)
		return
	}
	b.current.Pairs = append(b.current.Pairs, Pair{Name: name, Value: value})
}

// Commit returns the accumulated Tag and resets the builder
func (b *Builder) Commit() Tag {
	t := b.current
	b.current = Tag{}
	return t
}
