package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshdof/go-meshdof/internal/core/metrics"
	"github.com/meshdof/go-meshdof/internal/core/peering"
	"github.com/meshdof/go-meshdof/pkg/interfaces"
	"github.com/meshdof/go-meshdof/pkg/types"
)

// ============================================================================
//                              通信器替身
// ============================================================================

// fakeComm 脚本化通信器
//
// 发送与接收不真正传输：onSend/onRecv 回调决定何时向完成队列
// 注入什么事件，WaitAny 按序弹出。
type fakeComm struct {
	rank   types.Rank
	size   int
	nextID uint64

	pending []interfaces.Completion
	sent    map[types.Rank][][]byte

	onSend func(op interfaces.Operation, payload []byte)
	onRecv func(op interfaces.Operation)
}

func newFakeComm(rank types.Rank, size int) *fakeComm {
	return &fakeComm{rank: rank, size: size, sent: make(map[types.Rank][][]byte)}
}

func (c *fakeComm) Rank() types.Rank { return c.rank }
func (c *fakeComm) Size() int        { return c.size }
func (c *fakeComm) Close() error     { return nil }

func (c *fakeComm) complete(op interfaces.Operation, payload []byte, err error) {
	c.pending = append(c.pending, interfaces.Completion{Op: op, Payload: payload, Err: err})
}

func (c *fakeComm) Isend(_ context.Context, to types.Rank, cat types.Category, payload []byte) (interfaces.Operation, error) {
	op := interfaces.Operation{ID: c.nextID, Kind: interfaces.OpSend, Peer: to, Category: cat}
	c.nextID++
	c.sent[to] = append(c.sent[to], payload)
	if c.onSend != nil {
		c.onSend(op, payload)
	} else {
		c.complete(op, nil, nil)
	}
	return op, nil
}

func (c *fakeComm) Irecv(_ context.Context, from types.Rank, cat types.Category) (interfaces.Operation, error) {
	op := interfaces.Operation{ID: c.nextID, Kind: interfaces.OpRecv, Peer: from, Category: cat}
	c.nextID++
	if c.onRecv != nil {
		c.onRecv(op)
	}
	return op, nil
}

func (c *fakeComm) WaitAny(_ context.Context) (interfaces.Completion, error) {
	if len(c.pending) == 0 {
		return interfaces.Completion{}, errors.New("no pending operations")
	}
	comp := c.pending[0]
	c.pending = c.pending[1:]
	return comp, nil
}

func (c *fakeComm) Allgather(_ context.Context, value uint64) ([]uint64, error) {
	out := make([]uint64, c.size)
	out[c.rank] = value
	return out, nil
}

func newTestService(comm *fakeComm) (*Service, *metrics.Counters) {
	ctr := metrics.NewCounters()
	return NewService(comm, clock.New(), ctr, 0), ctr
}

// ============================================================================
//                              询问方路径
// ============================================================================

func TestExchangeAskerPath(t *testing.T) {
	comm := newFakeComm(1, 2)
	svc, ctr := newTestService(comm)

	// 两条查询发往属主 0
	reg := peering.NewRegistry(1)
	require.NoError(t, reg.AddQuery(0, 16, 0))
	require.NoError(t, reg.AddQuery(0, 3, 1))

	// 属主应答 [7, 9]
	comm.onRecv = func(op interfaces.Operation) {
		require.Equal(t, types.CategoryReply, op.Category)
		payload, err := EncodeMessage(types.CategoryReply, []uint64{7, 9})
		require.NoError(t, err)
		comm.complete(op, payload, nil)
	}

	layout := types.NewSlotLayout(false, false)
	res, err := svc.Exchange(context.Background(), Inputs{
		Registry:     reg,
		Layout:       layout,
		ElementCount: 2,
		Slots:        []types.NodeSlot{types.OwnedSlot(0), types.OwnedSlot(1)},
		OwnedCount:   2,
		SharedCount:  2,
	})
	require.NoError(t, err)

	// 发出的查询报文携带登记的全局位置
	require.Len(t, comm.sent[0], 1)
	cat, values, err := DecodeMessage(comm.sent[0][0])
	require.NoError(t, err)
	assert.Equal(t, types.CategoryQuery, cat)
	assert.Equal(t, []uint64{16, 3}, values)

	// 应答散布进占位表
	assert.Equal(t, []types.Rank{0, 0}, res.OwnerRank)
	assert.Equal(t, []types.LocalNodeIndex{7, 9}, res.OwnerLocal)

	// 对端状态机到达终态
	p, _ := reg.Lookup(0)
	assert.Equal(t, peering.StateDone, p.State)

	stats := ctr.GetStats()
	assert.Equal(t, int64(1), stats.MsgsOut)
	assert.Equal(t, int64(1), stats.MsgsIn)
	assert.Equal(t, int64(1), stats.Exchanges)
}

// ============================================================================
//                              属主侧路径
// ============================================================================

// ownerInputs 属主侧测试输入：两个拥有面槽位
func ownerInputs(t *testing.T, reg *peering.Registry) (Inputs, int64, int64) {
	t.Helper()
	layout := types.NewSlotLayout(true, false)
	slots := make([]types.NodeSlot, 2*layout.SlotsPerElement())
	for i := range slots {
		slots[i] = types.UnsetSlot
	}
	gposA := layout.GlobalPos(1, layout.PosFaceFull(2))
	gposB := layout.GlobalPos(0, layout.PosFaceFull(0))
	slots[gposA] = types.OwnedSlot(5)
	slots[gposB] = types.OwnedSlot(1)

	return Inputs{
		Registry:     reg,
		Layout:       layout,
		ElementCount: 2,
		Slots:        slots,
		OwnedCount:   6,
		SharedCount:  0,
	}, gposA, gposB
}

func TestExchangeOwnerPath(t *testing.T) {
	comm := newFakeComm(0, 3)
	svc, ctr := newTestService(comm)

	reg := peering.NewRegistry(0)
	require.NoError(t, reg.AddReply(2))
	require.NoError(t, reg.AddReply(2))
	in, gposA, gposB := ownerInputs(t, reg)

	// 对端 2 的查询到达
	comm.onRecv = func(op interfaces.Operation) {
		require.Equal(t, types.CategoryQuery, op.Category)
		payload, err := EncodeMessage(types.CategoryQuery, []uint64{uint64(gposA), uint64(gposB)})
		require.NoError(t, err)
		comm.complete(op, payload, nil)
	}

	res, err := svc.Exchange(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, res.OwnerRank)

	// 应答载荷是翻译后的拥有索引
	require.Len(t, comm.sent[2], 1)
	cat, values, err := DecodeMessage(comm.sent[2][0])
	require.NoError(t, err)
	assert.Equal(t, types.CategoryReply, cat)
	assert.Equal(t, []uint64{5, 1}, values)

	p, _ := reg.Lookup(2)
	assert.Equal(t, peering.StateDone, p.State)
	assert.Equal(t, int64(1), ctr.GetStats().Exchanges)
}

func TestExchangeOwnerValidation(t *testing.T) {
	run := func(t *testing.T, queries []uint64) error {
		t.Helper()
		comm := newFakeComm(0, 3)
		svc, _ := newTestService(comm)

		reg := peering.NewRegistry(0)
		for range queries {
			require.NoError(t, reg.AddReply(2))
		}
		in, _, _ := ownerInputs(t, reg)

		comm.onRecv = func(op interfaces.Operation) {
			payload, err := EncodeMessage(types.CategoryQuery, queries)
			require.NoError(t, err)
			comm.complete(op, payload, nil)
		}
		_, err := svc.Exchange(context.Background(), in)
		return err
	}

	t.Run("中心位置不可查询", func(t *testing.T) {
		layout := types.NewSlotLayout(true, false)
		err := run(t, []uint64{uint64(layout.GlobalPos(0, layout.PosCenter()))})
		assert.ErrorIs(t, err, ErrBadQuery)
	})

	t.Run("位置越界", func(t *testing.T) {
		err := run(t, []uint64{1 << 40})
		assert.ErrorIs(t, err, ErrBadQuery)
	})

	t.Run("未赋值槽位", func(t *testing.T) {
		layout := types.NewSlotLayout(true, false)
		err := run(t, []uint64{uint64(layout.GlobalPos(0, layout.PosFaceFull(3)))})
		assert.ErrorIs(t, err, ErrBadQuery)
	})

	t.Run("查询数与登记不符", func(t *testing.T) {
		comm := newFakeComm(0, 3)
		svc, _ := newTestService(comm)

		reg := peering.NewRegistry(0)
		require.NoError(t, reg.AddReply(2))
		require.NoError(t, reg.AddReply(2))
		in, gposA, _ := ownerInputs(t, reg)

		comm.onRecv = func(op interfaces.Operation) {
			payload, err := EncodeMessage(types.CategoryQuery, []uint64{uint64(gposA)})
			require.NoError(t, err)
			comm.complete(op, payload, nil)
		}
		_, err := svc.Exchange(context.Background(), in)
		assert.ErrorIs(t, err, ErrCountMismatch)
	})
}

// ============================================================================
//                              错误与边界
// ============================================================================

func TestExchangeErrors(t *testing.T) {
	t.Run("应答数与查询不符", func(t *testing.T) {
		comm := newFakeComm(1, 2)
		svc, _ := newTestService(comm)

		reg := peering.NewRegistry(1)
		require.NoError(t, reg.AddQuery(0, 16, 0))
		require.NoError(t, reg.AddQuery(0, 3, 1))

		comm.onRecv = func(op interfaces.Operation) {
			payload, err := EncodeMessage(types.CategoryReply, []uint64{7})
			require.NoError(t, err)
			comm.complete(op, payload, nil)
		}

		_, err := svc.Exchange(context.Background(), Inputs{
			Registry:     reg,
			Layout:       types.NewSlotLayout(false, false),
			ElementCount: 0,
			Slots:        nil,
			SharedCount:  2,
		})
		assert.ErrorIs(t, err, ErrCountMismatch)
	})

	t.Run("传输错误中止", func(t *testing.T) {
		comm := newFakeComm(1, 2)
		svc, _ := newTestService(comm)

		reg := peering.NewRegistry(1)
		require.NoError(t, reg.AddQuery(0, 16, 0))

		comm.onSend = func(op interfaces.Operation, _ []byte) {
			comm.complete(op, nil, errors.New("connection reset"))
		}

		_, err := svc.Exchange(context.Background(), Inputs{
			Registry:     reg,
			Layout:       types.NewSlotLayout(false, false),
			ElementCount: 0,
			Slots:        nil,
			SharedCount:  1,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
	})

	t.Run("输入不自洽", func(t *testing.T) {
		comm := newFakeComm(1, 2)
		svc, _ := newTestService(comm)

		reg := peering.NewRegistry(1)
		require.NoError(t, reg.AddQuery(0, 16, 0))

		_, err := svc.Exchange(context.Background(), Inputs{
			Registry:     reg,
			Layout:       types.NewSlotLayout(false, false),
			ElementCount: 0,
			Slots:        nil,
			SharedCount:  0, // 与注册表的 1 条查询矛盾
		})
		assert.ErrorIs(t, err, ErrBadInputs)
	})

	t.Run("无对端时立即返回", func(t *testing.T) {
		comm := newFakeComm(0, 1)
		svc, ctr := newTestService(comm)

		res, err := svc.Exchange(context.Background(), Inputs{
			Registry:     peering.NewRegistry(0),
			Layout:       types.NewSlotLayout(false, false),
			ElementCount: 0,
			Slots:        nil,
			SharedCount:  0,
		})
		require.NoError(t, err)
		assert.Empty(t, res.OwnerRank)
		assert.Zero(t, ctr.GetStats().MsgsOut)
		assert.EqualValues(t, 1, ctr.GetStats().Exchanges)
	})
}

// ============================================================================
//                              停滞监视
// ============================================================================

func TestWatchdog(t *testing.T) {
	mockClk := clock.NewMock()
	ctr := metrics.NewCounters()
	svc := NewService(newFakeComm(0, 2), mockClk, ctr, 30*time.Second)
	se := &session{id: uuid.New(), svc: svc}

	done := make(chan struct{})
	go se.watch(context.Background(), done)
	defer close(done)

	// 让监视 goroutine 先挂上 ticker
	time.Sleep(10 * time.Millisecond)

	// 无进展的间隔记为停滞
	mockClk.Add(30 * time.Second)
	require.Eventually(t, func() bool {
		return ctr.GetStats().Stalls == 1
	}, time.Second, 5*time.Millisecond)

	// 有进展的间隔不记停滞，随后的静默间隔再次告警
	se.progress.bump()
	time.Sleep(10 * time.Millisecond)
	mockClk.Add(30 * time.Second)
	time.Sleep(10 * time.Millisecond)
	mockClk.Add(30 * time.Second)
	require.Eventually(t, func() bool {
		return ctr.GetStats().Stalls == 2
	}, time.Second, 5*time.Millisecond)
}
