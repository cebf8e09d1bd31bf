package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheSetGet(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.Set("123", "SomeUser")

	got, ok := c.Get("123")
	assert.True(t, ok)
	assert.Equal(t, "SomeUser", got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.SetWithTTL("123", "SomeUser", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("123")
	assert.False(t, ok)
}

func TestCacheDelete(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.Set("123", "SomeUser")
	c.Delete("123")

	_, ok := c.Get("123")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
