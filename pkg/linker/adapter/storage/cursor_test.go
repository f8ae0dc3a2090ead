package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCursorCache(t *testing.T) {
	c := NewCursorCache(2)
	c.Put("b", "p/", 500, "tok-500")

	cur, ok := c.Get("b", "p/", 500)
	assert.True(t, ok)
	assert.Equal(t, "tok-500", cur)

	_, ok = c.Get("b", "other/", 500)
	assert.False(t, ok)

	c.Put("b", "p/", 1000, "tok-1000")
	c.Put("b", "p/", 1500, "tok-1500") // over the limit: cache is reset first
	_, ok = c.Get("b", "p/", 500)
	assert.False(t, ok)
	cur, _ = c.Get("b", "p/", 1500)
	assert.Equal(t, "tok-1500", cur)
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "https://cdn/x/y.jpg", JoinURL("https://cdn/", "/x/y.jpg"))
	assert.Equal(t, "https://cdn/x/y.jpg", JoinURL("https://cdn", "x/y.jpg"))
	assert.Equal(t, "https://cdn/shots/front%20view.jpg", JoinURL("https://cdn", "shots/front view.jpg"))
}
