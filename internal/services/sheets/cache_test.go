package sheets

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestCacheServesFreshEntry(t *testing.T) {
	c := NewCache(time.Minute)
	calls := 0
	fetch := func() (int, error) {
		calls++
		return 7, nil
	}

	v, err := cached(c, "k", fetch)
	require.NoError(t, err)
	require.Equal(t, 7, v)

	v, err = cached(c, "k", fetch)
	require.NoError(t, err)
	require.Equal(t, 7, v)
	require.Equal(t, 1, calls, "second read must hit the cache")
}

func TestCacheExpires(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	calls := 0
	fetch := func() (int, error) {
		calls++
		return calls, nil
	}

	_, err := cached(c, "k", fetch)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	v, err := cached(c, "k", fetch)
	require.NoError(t, err)
	require.Equal(t, 2, v)
	require.Equal(t, 2, calls)
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(time.Minute)
	calls := 0
	fetch := func() (string, error) {
		calls++
		return "v", nil
	}

	_, err := cached(c, "balances", fetch)
	require.NoError(t, err)
	c.Invalidate("balances", "article_usage")
	_, err = cached(c, "balances", fetch)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestCacheDoesNotCacheErrors(t *testing.T) {
	c := NewCache(time.Minute)
	calls := 0
	boom := errors.New("boom")
	fetch := func() (int, error) {
		calls++
		if calls == 1 {
			return 0, boom
		}
		return 5, nil
	}

	_, err := cached(c, "k", fetch)
	require.ErrorIs(t, err, boom)
	v, err := cached(c, "k", fetch)
	require.NoError(t, err)
	require.Equal(t, 5, v)
}
