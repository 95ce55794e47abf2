package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshdof/go-meshdof/pkg/types"
)

func TestCounters(t *testing.T) {
	t.Run("全局与分级计数", func(t *testing.T) {
		c := NewCounters()
		c.LogSentMessage(1, types.CategoryQuery, 100)
		c.LogSentMessage(2, types.CategoryQuery, 50)
		c.LogRecvMessage(1, types.CategoryReply, 30)
		c.LogExchange()

		stats := c.GetStats()
		assert.Equal(t, int64(150), stats.BytesOut)
		assert.Equal(t, int64(30), stats.BytesIn)
		assert.Equal(t, int64(2), stats.MsgsOut)
		assert.Equal(t, int64(1), stats.MsgsIn)
		assert.Equal(t, int64(1), stats.Exchanges)

		in, out := c.GetStatsForCategory(types.CategoryQuery)
		assert.Equal(t, int64(0), in)
		assert.Equal(t, int64(150), out)

		in, out = c.GetStatsForPeer(1)
		assert.Equal(t, int64(30), in)
		assert.Equal(t, int64(100), out)

		assert.Len(t, c.Peers(), 2)
	})

	t.Run("未记录的类别与对端为零", func(t *testing.T) {
		c := NewCounters()
		in, out := c.GetStatsForCategory(types.CategoryCollective)
		assert.Zero(t, in)
		assert.Zero(t, out)
		in, out = c.GetStatsForPeer(9)
		assert.Zero(t, in)
		assert.Zero(t, out)
	})

	t.Run("重置清零", func(t *testing.T) {
		c := NewCounters()
		c.LogSentMessage(1, types.CategoryQuery, 100)
		c.LogStall()
		c.Reset()

		assert.Equal(t, Stats{}, c.GetStats())
		_, out := c.GetStatsForPeer(1)
		assert.Zero(t, out)
	})

	t.Run("并发记录", func(t *testing.T) {
		c := NewCounters()
		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(rank types.Rank) {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					c.LogSentMessage(rank, types.CategoryQuery, 1)
					c.LogRecvMessage(rank, types.CategoryReply, 1)
				}
			}(types.Rank(g % 4))
		}
		wg.Wait()

		stats := c.GetStats()
		assert.Equal(t, int64(800), stats.BytesOut)
		assert.Equal(t, int64(800), stats.BytesIn)
	})
}

func TestCollector(t *testing.T) {
	c := NewCounters()
	c.LogSentMessage(1, types.CategoryQuery, 64)
	c.LogRecvMessage(1, types.CategoryReply, 32)
	c.LogExchange()

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(c)))

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, l := range m.GetLabel() {
				key += "|" + l.GetValue()
			}
			byName[key] = m.GetCounter().GetValue()
		}
	}

	assert.Equal(t, float64(64), byName["meshdof_exchange_bytes_total|out"])
	assert.Equal(t, float64(32), byName["meshdof_exchange_bytes_total|in"])
	assert.Equal(t, float64(1), byName["meshdof_exchange_rounds_total"])
	assert.Equal(t, float64(64), byName["meshdof_exchange_category_bytes_total|query|out"])
	// 标签对按名称排序（direction 先于 rank）
	assert.Equal(t, float64(32), byName["meshdof_exchange_peer_bytes_total|in|1"])
}
