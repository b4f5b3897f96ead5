package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
)

func TestPolicy_BackOffDoubles(t *testing.T) {
	b := Policy{Attempts: 4, BaseDelay: 100 * time.Millisecond}.BackOff(context.Background())

	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 200*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 400*time.Millisecond, b.NextBackOff())
	assert.Equal(t, backoff.Stop, b.NextBackOff())
}

func TestPolicy_SingleAttempt(t *testing.T) {
	b := Policy{}.BackOff(context.Background())
	assert.Equal(t, backoff.Stop, b.NextBackOff())
}

func TestPolicy_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := DefaultPolicy().BackOff(ctx)
	assert.Equal(t, backoff.Stop, b.NextBackOff())
}

func TestMemoryCache_Evicts(t *testing.T) {
	c, err := NewMemoryCache(2)
	assert.NoError(t, err)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	_, ok := c.Get("a")
	assert.False(t, ok)
	v, ok := c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, 2, c.Len())
}

func TestPlaceholderID(t *testing.T) {
	a := placeholderID("message|org-a|1|user|abc")
	assert.Equal(t, a, placeholderID("message|org-a|1|user|abc"))
	assert.Negative(t, a)
	assert.NotEqual(t, a, placeholderID("message|org-b|1|user|abc"))
}
