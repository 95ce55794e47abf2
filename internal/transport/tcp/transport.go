// Package tcp 提供跨进程的帧式 TCP 通信器
//
// 一个 TCP 世界由固定成员表描述：每秩一个监听地址，全体成员
// 在 Start 阶段建成全网格连接（低秩监听，高秩拨入）。握手校验
// 世界标识与秩，数据帧可选 zstd 压缩。
//
// 故障模型与协议一致：任何连接出错即宣告整个世界失败，唤醒
// 所有等待方，没有重连与部分恢复。
package tcp

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	tec "github.com/jbenet/go-temp-err-catcher"
	"go.uber.org/multierr"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/meshdof/go-meshdof/config"
	"github.com/meshdof/go-meshdof/internal/util/logger"
	"github.com/meshdof/go-meshdof/pkg/interfaces"
	"github.com/meshdof/go-meshdof/pkg/types"
)

// 包级别日志实例
var log = logger.Logger("tcp")

// dialRetryInterval 拨号重试间隔
//
// 成员进程的启动顺序不受控，拨号方轮询直到监听方就绪或超时。
const dialRetryInterval = 100 * time.Millisecond

// mailKey 入站报文的匹配键
type mailKey struct {
	from types.Rank
	cat  types.Category
}

// pendingRecv 已挂起但未匹配到报文的接收
type pendingRecv struct {
	op interfaces.Operation
}

// ============================================================================
//                              Transport 通信器
// ============================================================================

// Transport 一个秩在 TCP 世界中的通信器
type Transport struct {
	cfg   *config.TransportConfig
	rank  types.Rank
	size  int
	world uuid.UUID

	listener net.Listener

	mu           sync.Mutex
	closed       bool
	err          error
	nextID       uint64
	conns        []*peerConn
	inbox        map[mailKey][][]byte
	recvQ        []pendingRecv
	ready        []interfaces.Completion
	pendingSends int
	inboundLeft  int

	// notify 在 ready 增长或状态翻转时置位
	notify chan struct{}

	// doneCh 在失败或关闭时关闭，唤醒所有阻塞方
	doneCh   chan struct{}
	doneOnce sync.Once

	// inboundReady 在全部入站连接就绪时关闭
	inboundReady chan struct{}

	// collCh 每发送秩一条的集合帧通道
	collCh []chan []byte

	wg sync.WaitGroup
}

var _ interfaces.Communicator = (*Transport)(nil)

// New 按配置创建 TCP 通信器
//
// 只做校验与结构初始化，不发起任何网络操作；连接建立在 Start。
func New(cfg *config.TransportConfig) (*Transport, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrBadWorld)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Peers) == 0 {
		return nil, fmt.Errorf("%w: empty peer table", ErrBadWorld)
	}

	world := uuid.Nil
	if cfg.WorldID != "" {
		parsed, err := uuid.Parse(cfg.WorldID)
		if err != nil {
			return nil, fmt.Errorf("%w: world_id: %v", ErrBadWorld, err)
		}
		world = parsed
	}

	size := len(cfg.Peers)
	rank := types.Rank(cfg.Rank)
	t := &Transport{
		cfg:          cfg,
		rank:         rank,
		size:         size,
		world:        world,
		conns:        make([]*peerConn, size),
		inbox:        make(map[mailKey][][]byte),
		notify:       make(chan struct{}, 1),
		doneCh:       make(chan struct{}),
		inboundReady: make(chan struct{}),
		collCh:       make([]chan []byte, size),
		inboundLeft:  size - 1 - int(rank),
	}
	for r := range t.collCh {
		t.collCh[r] = make(chan []byte, 1)
	}
	if t.inboundLeft == 0 {
		close(t.inboundReady)
	}
	return t, nil
}

// Start 建立全网格连接
//
// 本秩向所有更低的秩拨出，并等待所有更高的秩拨入。任一方向
// 失败（拨号超时、握手被拒、入站等待超时）都使 Start 整体失败。
func (t *Transport) Start(ctx context.Context) error {
	if t.size == 1 {
		log.Debug("单秩世界，无需连接")
		return nil
	}

	if t.inboundLeft > 0 {
		l, err := net.Listen("tcp", t.cfg.Peers[t.rank])
		if err != nil {
			return fmt.Errorf("监听 %s: %w", t.cfg.Peers[t.rank], err)
		}
		t.listener = netutil.LimitListener(l, t.cfg.MaxConns)
		t.wg.Add(1)
		go t.acceptLoop()
	}

	g, gctx := errgroup.WithContext(ctx)
	for r := types.Rank(0); r < t.rank; r++ {
		r := r
		g.Go(func() error { return t.dialPeer(gctx, r) })
	}
	g.Go(func() error {
		var expired <-chan time.Time
		if d := t.cfg.DialTimeout.Duration(); d > 0 {
			timer := time.NewTimer(d)
			defer timer.Stop()
			expired = timer.C
		}
		select {
		case <-t.inboundReady:
			return nil
		case <-gctx.Done():
			return gctx.Err()
		case <-t.doneCh:
			return t.takeErr()
		case <-expired:
			return fmt.Errorf("%w: 等待入站连接超时", ErrHandshake)
		}
	})
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("TCP 世界就绪", "rank", t.rank, "size", t.size)
	return nil
}

// ============================================================================
//                              连接建立
// ============================================================================

// acceptLoop 接受更高秩的入站连接
func (t *Transport) acceptLoop() {
	defer t.wg.Done()

	var catcher tec.TempErrCatcher
	for {
		c, err := t.listener.Accept()
		if err != nil {
			if catcher.IsTemporary(err) {
				continue
			}
			select {
			case <-t.doneCh:
			default:
				t.fail(fmt.Errorf("接受连接: %w", err))
			}
			return
		}
		t.wg.Add(1)
		go t.handleInbound(c)
	}
}

// handleInbound 校验一条入站连接的握手
//
// 不合格的连接只丢弃不宣告失败：监听端口对外可达，异常来访
// 不应拖垮整个世界。
func (t *Transport) handleInbound(c net.Conn) {
	defer t.wg.Done()

	deadline := time.Now().Add(t.cfg.HandshakeTimeout.Duration())
	if err := c.SetDeadline(deadline); err != nil {
		_ = c.Close()
		return
	}

	remote, err := readHello(c, t.world)
	if err != nil {
		log.Warn("入站握手被拒", "err", err)
		_ = c.Close()
		return
	}
	if remote <= t.rank || int(remote) >= t.size {
		log.Warn("入站秩非法", "remote", remote)
		_ = c.Close()
		return
	}
	if err := writeHello(c, t.world, t.rank); err != nil {
		log.Warn("回发握手失败", "remote", remote, "err", err)
		_ = c.Close()
		return
	}
	if err := c.SetDeadline(time.Time{}); err != nil {
		_ = c.Close()
		return
	}

	if err := t.register(newPeerConn(remote, c), true); err != nil {
		log.Warn("入站连接登记失败", "remote", remote, "err", err)
	}
}

// dialPeer 向更低的秩 r 拨出并握手
//
// 对端可能尚未监听，连接被拒后按固定间隔重试直到拨号超时。
func (t *Transport) dialPeer(ctx context.Context, r types.Rank) error {
	deadline := time.Now().Add(t.cfg.DialTimeout.Duration())
	addr := t.cfg.Peers[r]

	for {
		d := net.Dialer{Timeout: time.Until(deadline)}
		c, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return t.finishDial(c, r)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("拨号秩 %d (%s): %w", r, addr, err)
		}
		select {
		case <-time.After(dialRetryInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// finishDial 在已建立的连接上完成出站握手
func (t *Transport) finishDial(c net.Conn, r types.Rank) error {
	deadline := time.Now().Add(t.cfg.HandshakeTimeout.Duration())
	if err := c.SetDeadline(deadline); err != nil {
		_ = c.Close()
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if err := writeHello(c, t.world, t.rank); err != nil {
		_ = c.Close()
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	remote, err := readHello(c, t.world)
	if err != nil {
		_ = c.Close()
		return err
	}
	if remote != r {
		_ = c.Close()
		return fmt.Errorf("%w: 期望秩 %d，对端自称 %d", ErrHandshake, r, remote)
	}
	if err := c.SetDeadline(time.Time{}); err != nil {
		_ = c.Close()
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return t.register(newPeerConn(remote, c), false)
}

// register 登记一条就绪连接并启动其读写循环
func (t *Transport) register(pc *peerConn, inbound bool) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = pc.close()
		return ErrClosed
	}
	if t.conns[pc.rank] != nil {
		t.mu.Unlock()
		_ = pc.close()
		return fmt.Errorf("%w: 秩 %d 重复连接", ErrHandshake, pc.rank)
	}
	t.conns[pc.rank] = pc
	if inbound {
		t.inboundLeft--
		if t.inboundLeft == 0 {
			close(t.inboundReady)
		}
	}
	t.mu.Unlock()

	t.wg.Add(2)
	go t.readLoop(pc)
	go t.writeLoop(pc)

	log.Debug("对端连接就绪", "peer", pc.rank, "inbound", inbound)
	return nil
}

// ============================================================================
//                              Communicator 接口实现
// ============================================================================

// Rank 返回本通信器的秩
func (t *Transport) Rank() types.Rank { return t.rank }

// Size 返回世界大小
func (t *Transport) Size() int { return t.size }

// Isend 发起非阻塞发送
//
// 帧进入对端连接的出站队列，写出后投递发送完成事件。
func (t *Transport) Isend(ctx context.Context, to types.Rank, cat types.Category, payload []byte) (interfaces.Operation, error) {
	if !cat.IsValid() || cat == types.CategoryCollective {
		return interfaces.Operation{}, fmt.Errorf("%w: category %d", ErrBadAddress, cat)
	}
	if to < 0 || int(to) >= t.size || to == t.rank {
		return interfaces.Operation{}, fmt.Errorf("%w: send to rank %d", ErrBadAddress, to)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return interfaces.Operation{}, ErrClosed
	}
	if t.err != nil {
		err := t.err
		t.mu.Unlock()
		return interfaces.Operation{}, err
	}
	pc := t.conns[to]
	if pc == nil {
		t.mu.Unlock()
		return interfaces.Operation{}, fmt.Errorf("%w: 秩 %d 无连接", ErrNotStarted, to)
	}
	op := interfaces.Operation{ID: t.nextID, Kind: interfaces.OpSend, Peer: to, Category: cat}
	t.nextID++
	t.pendingSends++
	t.mu.Unlock()

	select {
	case pc.wq <- outFrame{op: op, cat: cat, payload: payload, post: true}:
		return op, nil
	case <-ctx.Done():
		t.dropPendingSend()
		return interfaces.Operation{}, ctx.Err()
	case <-t.doneCh:
		t.dropPendingSend()
		return interfaces.Operation{}, t.takeErr()
	}
}

// Irecv 发起非阻塞接收
func (t *Transport) Irecv(_ context.Context, from types.Rank, cat types.Category) (interfaces.Operation, error) {
	if !cat.IsValid() || cat == types.CategoryCollective {
		return interfaces.Operation{}, fmt.Errorf("%w: category %d", ErrBadAddress, cat)
	}
	if from < 0 || int(from) >= t.size || from == t.rank {
		return interfaces.Operation{}, fmt.Errorf("%w: receive from rank %d", ErrBadAddress, from)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return interfaces.Operation{}, ErrClosed
	}
	if t.err != nil {
		return interfaces.Operation{}, t.err
	}

	op := interfaces.Operation{ID: t.nextID, Kind: interfaces.OpRecv, Peer: from, Category: cat}
	t.nextID++

	// 报文先到：立即完成
	key := mailKey{from: from, cat: cat}
	if q := t.inbox[key]; len(q) > 0 {
		payload := q[0]
		if len(q) == 1 {
			delete(t.inbox, key)
		} else {
			t.inbox[key] = q[1:]
		}
		t.ready = append(t.ready, interfaces.Completion{Op: op, Payload: payload})
		t.signal()
		return op, nil
	}

	t.recvQ = append(t.recvQ, pendingRecv{op: op})
	return op, nil
}

// WaitAny 阻塞直到任意未决操作完成
func (t *Transport) WaitAny(ctx context.Context) (interfaces.Completion, error) {
	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return interfaces.Completion{}, ErrClosed
		}
		if t.err != nil {
			err := t.err
			t.mu.Unlock()
			return interfaces.Completion{}, err
		}
		if len(t.ready) > 0 {
			comp := t.ready[0]
			t.ready = t.ready[1:]
			t.mu.Unlock()
			return comp, nil
		}
		if len(t.recvQ) == 0 && t.pendingSends == 0 {
			t.mu.Unlock()
			return interfaces.Completion{}, ErrNoPending
		}
		t.mu.Unlock()

		select {
		case <-t.notify:
		case <-ctx.Done():
			return interfaces.Completion{}, ctx.Err()
		case <-t.doneCh:
			return interfaces.Completion{}, t.takeErr()
		}
	}
}

// Allgather 收集每秩一个整数
//
// 在点对点流量之上以集合帧实现：各秩把 8 字节大端值发给秩 0，
// 秩 0 凑齐后把全表广播回去。集合帧经独立通道路由，不与
// 查询/应答的完成事件混流。
func (t *Transport) Allgather(ctx context.Context, value uint64) ([]uint64, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	if t.err != nil {
		err := t.err
		t.mu.Unlock()
		return nil, err
	}
	t.mu.Unlock()

	if t.size == 1 {
		return []uint64{value}, nil
	}

	if t.rank == 0 {
		table := make([]uint64, t.size)
		table[0] = value
		for r := 1; r < t.size; r++ {
			p, err := t.recvCollective(ctx, types.Rank(r))
			if err != nil {
				return nil, err
			}
			if len(p) != 8 {
				return nil, fmt.Errorf("%w: 聚合贡献 %d 字节", ErrBadFrame, len(p))
			}
			table[r] = binary.BigEndian.Uint64(p)
		}

		buf := make([]byte, 8*t.size)
		for i, v := range table {
			binary.BigEndian.PutUint64(buf[8*i:], v)
		}
		for r := 1; r < t.size; r++ {
			if err := t.sendCollective(ctx, types.Rank(r), buf); err != nil {
				return nil, err
			}
		}
		return table, nil
	}

	var b [8]byte
	binary.BigEndian.PutUint64(b[:], value)
	if err := t.sendCollective(ctx, 0, b[:]); err != nil {
		return nil, err
	}
	p, err := t.recvCollective(ctx, 0)
	if err != nil {
		return nil, err
	}
	if len(p) != 8*t.size {
		return nil, fmt.Errorf("%w: 聚合全表 %d 字节", ErrBadFrame, len(p))
	}
	table := make([]uint64, t.size)
	for i := range table {
		table[i] = binary.BigEndian.Uint64(p[8*i:])
	}
	return table, nil
}

// Close 关闭通信器
//
// 幂等。关闭监听器与全部连接，唤醒所有阻塞方，等待后台
// 循环退出。
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	if t.err == nil {
		t.err = ErrClosed
	}
	conns := make([]*peerConn, len(t.conns))
	copy(conns, t.conns)
	t.inbox = nil
	t.recvQ = nil
	t.ready = nil
	t.mu.Unlock()

	t.doneOnce.Do(func() { close(t.doneCh) })
	t.signal()

	var err error
	if t.listener != nil {
		err = multierr.Append(err, t.listener.Close())
	}
	for _, pc := range conns {
		if pc != nil {
			err = multierr.Append(err, pc.close())
		}
	}
	t.wg.Wait()
	return err
}

// ============================================================================
//                              内部机制
// ============================================================================

// deliver 投递一条入站点对点报文（读循环调用）
func (t *Transport) deliver(from types.Rank, cat types.Category, payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.err != nil {
		return
	}

	// 匹配最早挂起的同键接收
	for i, pr := range t.recvQ {
		if pr.op.Peer == from && pr.op.Category == cat {
			t.recvQ = append(t.recvQ[:i], t.recvQ[i+1:]...)
			t.ready = append(t.ready, interfaces.Completion{Op: pr.op, Payload: payload})
			t.signal()
			return
		}
	}

	key := mailKey{from: from, cat: cat}
	t.inbox[key] = append(t.inbox[key], payload)
}

// complete 投递一个发送完成事件（写循环调用）
func (t *Transport) complete(comp interfaces.Completion) {
	t.mu.Lock()
	t.pendingSends--
	if !t.closed && t.err == nil {
		t.ready = append(t.ready, comp)
	}
	t.mu.Unlock()
	t.signal()
}

// dropPendingSend 撤销一次未入队的发送计数
func (t *Transport) dropPendingSend() {
	t.mu.Lock()
	t.pendingSends--
	t.mu.Unlock()
}

// sendCollective 把集合帧投入出站队列，不产生完成事件
func (t *Transport) sendCollective(ctx context.Context, to types.Rank, payload []byte) error {
	t.mu.Lock()
	pc := t.conns[to]
	t.mu.Unlock()
	if pc == nil {
		return fmt.Errorf("%w: 秩 %d 无连接", ErrNotStarted, to)
	}

	select {
	case pc.wq <- outFrame{cat: types.CategoryCollective, payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.doneCh:
		return t.takeErr()
	}
}

// recvCollective 等待来自 from 的下一条集合帧
func (t *Transport) recvCollective(ctx context.Context, from types.Rank) ([]byte, error) {
	select {
	case p := <-t.collCh[from]:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.doneCh:
		return nil, t.takeErr()
	}
}

// fail 宣告世界失败并唤醒所有阻塞方
//
// 只记录第一个错误；之后的连锁错误（对端连接随之中断）被忽略。
func (t *Transport) fail(err error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
		log.Error("传输失败", "rank", t.rank, "err", err)
	}
	t.mu.Unlock()

	t.doneOnce.Do(func() { close(t.doneCh) })
	t.signal()
}

// takeErr 读取记录的失败原因
func (t *Transport) takeErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	return ErrClosed
}

// signal 置位完成通知
func (t *Transport) signal() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}
