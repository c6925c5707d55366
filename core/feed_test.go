package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed(t *testing.T) {
	t.Run("publish reaches all subscribers", func(t *testing.T) {
		feed := NewFeed[int]()

		var first, second []int
		feed.Subscribe(func(v int) { first = append(first, v) })
		feed.Subscribe(func(v int) { second = append(second, v) })

		feed.Publish(1)
		feed.Publish(2)

		assert.Equal(t, []int{1, 2}, first)
		assert.Equal(t, []int{1, 2}, second)
	})

	t.Run("cancelled subscriber stops receiving", func(t *testing.T) {
		feed := NewFeed[int]()

		var got []int
		cancel := feed.Subscribe(func(v int) { got = append(got, v) })

		feed.Publish(1)
		cancel()
		feed.Publish(2)

		assert.Equal(t, []int{1}, got)
		assert.Equal(t, 0, feed.Len())
	})

	t.Run("cancel is idempotent", func(t *testing.T) {
		feed := NewFeed[int]()

		cancelFirst := feed.Subscribe(func(int) {})
		cancelSecond := feed.Subscribe(func(int) {})
		require.Equal(t, 2, feed.Len())

		cancelFirst()
		cancelFirst()
		cancelFirst()

		// Repeated cancels must not tear down other subscriptions.
		assert.Equal(t, 1, feed.Len())
		cancelSecond()
		assert.Equal(t, 0, feed.Len())
	})
}
