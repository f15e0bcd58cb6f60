package tag

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuilderCommitResets(t *testing.T) {
	b := NewBuilder()
	b.OnTag(Track, "3")
	b.OnTag(Title, "  Prelude ")
	b.OnTag(Artist, "")
	b.OnDuration(90 * time.Second)
	b.OnPair("codec", "DST")

	first := b.Commit()

	track, ok := first.Get(Track)
	assert.True(t, ok)
	assert.Equal(t, "3", track)

	title, _ := first.Get(Title)
	assert.Equal(t, "Prelude", title)

	_, ok = first.Get(Artist)
	assert.False(t, ok, "empty values are dropped")

	codec, ok := first.Pair("CODEC")
	assert.True(t, ok)
	assert.Equal(t, "DST", codec)
	assert.Equal(t, 90*time.Second, first.Duration)

	second := b.Commit()
	assert.Empty(t, second.Items)
	assert.Empty(t, second.Pairs)
	assert.Zero(t, second.Duration)
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "album", Album.String())
	assert.Equal(t, "unknown", Type(99).String())
}
