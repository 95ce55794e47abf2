package tcp

import (
	"bufio"
	"fmt"
	"net"
	"sync"

	"github.com/meshdof/go-meshdof/pkg/interfaces"
	"github.com/meshdof/go-meshdof/pkg/types"
)

// writeQueueLen 每连接出站队列深度
const writeQueueLen = 16

// outFrame 一条待写出的帧
type outFrame struct {
	op      interfaces.Operation
	cat     types.Category
	payload []byte

	// post 写出后是否投递完成事件（集合帧不投递）
	post bool
}

// peerConn 与一个对端秩的连接
type peerConn struct {
	rank types.Rank
	c    net.Conn
	wq   chan outFrame

	closeOnce sync.Once
}

// newPeerConn 包装一条已完成握手的连接
func newPeerConn(rank types.Rank, c net.Conn) *peerConn {
	return &peerConn{
		rank: rank,
		c:    c,
		wq:   make(chan outFrame, writeQueueLen),
	}
}

// close 关闭底层连接，幂等
func (pc *peerConn) close() error {
	var err error
	pc.closeOnce.Do(func() {
		err = pc.c.Close()
	})
	return err
}

// ============================================================================
//                              每连接读写循环
// ============================================================================

// readLoop 持续读入对端帧并分发
//
// 点对点帧进入接收匹配；集合帧转入该秩的聚合通道。任何读错误
// 都宣告整个世界失败，协议没有对单连接的恢复。
func (t *Transport) readLoop(pc *peerConn) {
	defer t.wg.Done()

	br := bufio.NewReader(pc.c)
	for {
		cat, payload, err := readFrame(br)
		if err != nil {
			select {
			case <-t.doneCh:
			default:
				t.fail(fmt.Errorf("从秩 %d 接收失败: %w", pc.rank, err))
			}
			return
		}

		if cat == types.CategoryCollective {
			select {
			case t.collCh[pc.rank] <- payload:
			case <-t.doneCh:
				return
			}
			continue
		}
		t.deliver(pc.rank, cat, payload)
	}
}

// writeLoop 消费出站队列并逐帧写出
func (t *Transport) writeLoop(pc *peerConn) {
	defer t.wg.Done()

	bw := bufio.NewWriter(pc.c)
	for {
		select {
		case f := <-pc.wq:
			err := writeFrame(bw, f.cat, f.payload, t.cfg.CompressionThreshold)
			if err == nil {
				err = bw.Flush()
			}
			if f.post {
				t.complete(interfaces.Completion{Op: f.op, Err: err})
			}
			if err != nil {
				t.fail(fmt.Errorf("向秩 %d 发送失败: %w", pc.rank, err))
				return
			}
		case <-t.doneCh:
			return
		}
	}
}
