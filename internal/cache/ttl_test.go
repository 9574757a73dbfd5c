package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTL_Expiry(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewTTL[string, int](15*time.Second, func() time.Time { return now })

	c.Set("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(14 * time.Second)
	_, ok = c.Get("a")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTL_SweepAndDeleteFunc(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewTTL[string, int](time.Second, func() time.Time { return now })
	c.Set("s1/a", 1)
	c.Set("s1/b", 2)
	c.Set("s2/a", 3)

	c.DeleteFunc(func(k string) bool { return k[:2] == "s1" })
	assert.Equal(t, 1, c.Len())

	now = now.Add(2 * time.Second)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 0, c.Len())
}
