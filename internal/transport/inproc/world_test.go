package inproc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshdof/go-meshdof/pkg/types"
)

func TestNewWorld(t *testing.T) {
	t.Run("非法大小", func(t *testing.T) {
		_, err := NewWorld(0)
		assert.ErrorIs(t, err, ErrBadWorld)

		_, err = NewWorld(-3)
		assert.ErrorIs(t, err, ErrBadWorld)
	})

	t.Run("成员就位", func(t *testing.T) {
		w := newTestWorld(t, 3)
		assert.Equal(t, 3, w.Size())
		for r := 0; r < 3; r++ {
			c := w.Comm(types.Rank(r))
			assert.Equal(t, types.Rank(r), c.Rank())
			assert.Equal(t, 3, c.Size())
		}
	})
}

func TestAllgather(t *testing.T) {
	t.Run("全员到齐后同时放行", func(t *testing.T) {
		w := newTestWorld(t, 3)

		results := make([][]uint64, 3)
		errs := make([]error, 3)
		var wg sync.WaitGroup
		for r := 0; r < 3; r++ {
			wg.Add(1)
			go func(r int) {
				defer wg.Done()
				results[r], errs[r] = w.Comm(types.Rank(r)).Allgather(context.Background(), uint64(r*10))
			}(r)
		}
		wg.Wait()

		for r := 0; r < 3; r++ {
			require.NoError(t, errs[r])
			assert.Equal(t, []uint64{0, 10, 20}, results[r], "秩 %d 的全表", r)
		}
	})

	t.Run("连续多轮", func(t *testing.T) {
		w := newTestWorld(t, 2)

		for round := uint64(1); round <= 2; round++ {
			results := make([][]uint64, 2)
			var wg sync.WaitGroup
			for r := 0; r < 2; r++ {
				wg.Add(1)
				go func(r int) {
					defer wg.Done()
					results[r], _ = w.Comm(types.Rank(r)).Allgather(context.Background(), round*100+uint64(r))
				}(r)
			}
			wg.Wait()

			want := []uint64{round * 100, round*100 + 1}
			assert.Equal(t, want, results[0])
			assert.Equal(t, want, results[1])
		}
	})

	t.Run("重复加入同一轮", func(t *testing.T) {
		w := newTestWorld(t, 2)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		first := make(chan error, 1)
		go func() {
			_, err := w.Comm(0).Allgather(ctx, 1)
			first <- err
		}()

		require.Eventually(t, func() bool {
			w.gmu.Lock()
			defer w.gmu.Unlock()
			return w.gcur != nil && w.gcur.seen[0]
		}, time.Second, time.Millisecond)

		_, err := w.Comm(0).Allgather(ctx, 2)
		assert.ErrorIs(t, err, ErrBadWorld)

		cancel()
		assert.ErrorIs(t, <-first, context.Canceled)
	})

	t.Run("上下文取消", func(t *testing.T) {
		w := newTestWorld(t, 2)
		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() {
			// 秩 1 从不加入，本轮永远凑不齐
			_, err := w.Comm(0).Allgather(ctx, 1)
			errCh <- err
		}()

		time.Sleep(10 * time.Millisecond)
		cancel()
		assert.ErrorIs(t, <-errCh, context.Canceled)
	})
}

func TestWorldClose(t *testing.T) {
	w, err := NewWorld(2)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Comm(0).Allgather(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)

	// 再次关闭保持幂等
	require.NoError(t, w.Close())
}
