package tcp

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/meshdof/go-meshdof/config"
	"github.com/meshdof/go-meshdof/pkg/interfaces"
	"github.com/meshdof/go-meshdof/pkg/types"
)

// reserveAddrs 预占 n 个回环地址供成员表使用
func reserveAddrs(t *testing.T, n int) []string {
	t.Helper()
	addrs := make([]string, n)
	listeners := make([]net.Listener, n)
	for i := range addrs {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		listeners[i] = l
		addrs[i] = l.Addr().String()
	}
	for _, l := range listeners {
		require.NoError(t, l.Close())
	}
	return addrs
}

// newTCPWorld 建起一个 size 秩的回环 TCP 世界
func newTCPWorld(t *testing.T, size int) []*Transport {
	t.Helper()

	addrs := reserveAddrs(t, size)
	world := uuid.NewString()

	transports := make([]*Transport, size)
	for r := 0; r < size; r++ {
		cfg := config.DefaultTransportConfig()
		cfg.Rank = int32(r)
		cfg.Peers = addrs
		cfg.WorldID = world
		cfg.DialTimeout = config.Duration(5 * time.Second)

		tr, err := New(&cfg)
		require.NoError(t, err)
		transports[r] = tr
	}
	t.Cleanup(func() {
		for _, tr := range transports {
			_ = tr.Close()
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, tr := range transports {
		tr := tr
		g.Go(func() error { return tr.Start(gctx) })
	}
	require.NoError(t, g.Wait())
	return transports
}

func TestNewValidation(t *testing.T) {
	t.Run("空配置", func(t *testing.T) {
		_, err := New(nil)
		assert.ErrorIs(t, err, ErrBadWorld)
	})

	t.Run("空成员表", func(t *testing.T) {
		cfg := config.DefaultTransportConfig()
		_, err := New(&cfg)
		assert.ErrorIs(t, err, ErrBadWorld)
	})

	t.Run("世界标识不可解析", func(t *testing.T) {
		cfg := config.DefaultTransportConfig()
		cfg.Peers = []string{"127.0.0.1:9000"}
		cfg.WorldID = "not-a-uuid"
		_, err := New(&cfg)
		assert.ErrorIs(t, err, ErrBadWorld)
	})

	t.Run("秩越界", func(t *testing.T) {
		cfg := config.DefaultTransportConfig()
		cfg.Peers = []string{"127.0.0.1:9000"}
		cfg.Rank = 2
		_, err := New(&cfg)
		assert.ErrorIs(t, err, config.ErrInvalidTransport)
	})
}

func TestWorldConnect(t *testing.T) {
	transports := newTCPWorld(t, 3)

	for r, tr := range transports {
		assert.Equal(t, types.Rank(r), tr.Rank())
		assert.Equal(t, 3, tr.Size())
	}
}

func TestPointToPointOverTCP(t *testing.T) {
	ctx := context.Background()
	transports := newTCPWorld(t, 2)

	t.Run("高秩发查询", func(t *testing.T) {
		_, err := transports[1].Isend(ctx, 0, types.CategoryQuery, []byte("abc"))
		require.NoError(t, err)

		comp, err := transports[1].WaitAny(ctx)
		require.NoError(t, err)
		assert.Equal(t, interfaces.OpSend, comp.Op.Kind)
		assert.NoError(t, comp.Err)

		_, err = transports[0].Irecv(ctx, 1, types.CategoryQuery)
		require.NoError(t, err)

		comp, err = transports[0].WaitAny(ctx)
		require.NoError(t, err)
		assert.Equal(t, interfaces.OpRecv, comp.Op.Kind)
		assert.Equal(t, []byte("abc"), comp.Payload)
	})

	t.Run("低秩回应答", func(t *testing.T) {
		_, err := transports[0].Irecv(ctx, 1, types.CategoryQuery)
		require.NoError(t, err)
		_, err = transports[1].Isend(ctx, 0, types.CategoryQuery, []byte{1})
		require.NoError(t, err)

		comp, err := transports[0].WaitAny(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte{1}, comp.Payload)

		_, err = transports[0].Isend(ctx, 1, types.CategoryReply, []byte{2, 3})
		require.NoError(t, err)
		comp, err = transports[0].WaitAny(ctx)
		require.NoError(t, err)
		assert.Equal(t, interfaces.OpSend, comp.Op.Kind)

		_, err = transports[1].Irecv(ctx, 0, types.CategoryReply)
		require.NoError(t, err)

		// 先消费自己查询的发送完成，再取应答
		for {
			comp, err := transports[1].WaitAny(ctx)
			require.NoError(t, err)
			if comp.Op.Kind == interfaces.OpRecv {
				assert.Equal(t, []byte{2, 3}, comp.Payload)
				break
			}
		}
	})

	t.Run("大载荷经压缩完好往返", func(t *testing.T) {
		payload := bytes.Repeat([]byte("quadrant"), 8192)

		_, err := transports[1].Isend(ctx, 0, types.CategoryReply, payload)
		require.NoError(t, err)
		_, err = transports[0].Irecv(ctx, 1, types.CategoryReply)
		require.NoError(t, err)

		comp, err := transports[0].WaitAny(ctx)
		require.NoError(t, err)
		assert.Equal(t, payload, comp.Payload)
	})

	t.Run("集合类别不可用于点对点", func(t *testing.T) {
		_, err := transports[1].Isend(ctx, 0, types.CategoryCollective, nil)
		assert.ErrorIs(t, err, ErrBadAddress)

		_, err = transports[1].Irecv(ctx, 0, types.CategoryCollective)
		assert.ErrorIs(t, err, ErrBadAddress)
	})
}

func TestAllgatherOverTCP(t *testing.T) {
	transports := newTCPWorld(t, 3)

	results := make([][]uint64, 3)
	errs := make([]error, 3)
	var wg sync.WaitGroup
	for r := 0; r < 3; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			results[r], errs[r] = transports[r].Allgather(ctx, uint64(r+1)*5)
		}(r)
	}
	wg.Wait()

	for r := 0; r < 3; r++ {
		require.NoError(t, errs[r])
		assert.Equal(t, []uint64{5, 10, 15}, results[r], "秩 %d 的全表", r)
	}
}

func TestWaitAnyOverTCP(t *testing.T) {
	transports := newTCPWorld(t, 2)

	t.Run("无未决操作", func(t *testing.T) {
		_, err := transports[0].WaitAny(context.Background())
		assert.ErrorIs(t, err, ErrNoPending)
	})

	t.Run("上下文取消", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		_, err := transports[0].Irecv(ctx, 1, types.CategoryQuery)
		require.NoError(t, err)

		errCh := make(chan error, 1)
		go func() {
			_, werr := transports[0].WaitAny(ctx)
			errCh <- werr
		}()

		time.Sleep(10 * time.Millisecond)
		cancel()
		assert.ErrorIs(t, <-errCh, context.Canceled)
	})
}

func TestPeerFailureAborts(t *testing.T) {
	transports := newTCPWorld(t, 2)
	ctx := context.Background()

	_, err := transports[0].Irecv(ctx, 1, types.CategoryQuery)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, werr := transports[0].WaitAny(ctx)
		errCh <- werr
	}()

	// 对端整体退出，本端等待方必须被错误唤醒
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, transports[1].Close())

	err = <-errCh
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoPending)
}

func TestStartDialTimeout(t *testing.T) {
	addrs := reserveAddrs(t, 2)

	cfg := config.DefaultTransportConfig()
	cfg.Rank = 1
	cfg.Peers = addrs
	cfg.WorldID = uuid.NewString()
	cfg.DialTimeout = config.Duration(300 * time.Millisecond)

	tr, err := New(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	// 秩 0 从不上线
	err = tr.Start(context.Background())
	require.Error(t, err)
}

func TestTransportClose(t *testing.T) {
	transports := newTCPWorld(t, 2)
	ctx := context.Background()

	tr := transports[0]
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	_, err := tr.Isend(ctx, 1, types.CategoryQuery, nil)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = tr.Irecv(ctx, 1, types.CategoryQuery)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = tr.WaitAny(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = tr.Allgather(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
}
