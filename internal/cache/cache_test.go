package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetAndGet(t *testing.T) {
	c := New(time.Hour)

	c.Set("key1", "value1")

	val, found := c.Get("key1")
	assert.True(t, found)
	assert.Equal(t, "value1", val)
}

func TestCache_GetMissing(t *testing.T) {
	c := New(time.Hour)

	val, found := c.Get("nonexistent")
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestCache_Expiration(t *testing.T) {
	c := New(50 * time.Millisecond)

	c.Set("key", "value")

	val, found := c.Get("key")
	assert.True(t, found)
	assert.Equal(t, "value", val)

	time.Sleep(100 * time.Millisecond)

	val, found = c.Get("key")
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestCache_SetWithTTL(t *testing.T) {
	c := New(time.Hour)

	c.SetWithTTL("short", "value", 50*time.Millisecond)
	c.Set("long", "value")

	_, found := c.Get("short")
	assert.True(t, found)
	_, found = c.Get("long")
	assert.True(t, found)

	time.Sleep(100 * time.Millisecond)

	_, found = c.Get("short")
	assert.False(t, found)
	_, found = c.Get("long")
	assert.True(t, found)
}

func TestCache_Delete(t *testing.T) {
	c := New(time.Hour)

	c.Set("key", "value")
	c.Delete("key")

	_, found := c.Get("key")
	assert.False(t, found)
}

func TestCache_GetOrSet(t *testing.T) {
	c := New(time.Hour)

	callCount := 0
	fn := func() (interface{}, error) {
		callCount++
		return "computed", nil
	}

	val, err := c.GetOrSet("key", fn)
	assert.NoError(t, err)
	assert.Equal(t, "computed", val)
	assert.Equal(t, 1, callCount)

	// Second call hits the cache
	val, err = c.GetOrSet("key", fn)
	assert.NoError(t, err)
	assert.Equal(t, "computed", val)
	assert.Equal(t, 1, callCount)
}

func TestCache_GetOrSetError(t *testing.T) {
	c := New(time.Hour)

	_, err := c.GetOrSet("key", func() (interface{}, error) {
		return nil, errors.New("collect failed")
	})
	assert.Error(t, err)

	// A failed compute must not poison the cache
	_, found := c.Get("key")
	assert.False(t, found)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(time.Hour)

	done := make(chan bool)

	go func() {
		for i := 0; i < 100; i++ {
			c.Set("key", i)
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			c.Get("key")
		}
		done <- true
	}()

	<-done
	<-done
}
