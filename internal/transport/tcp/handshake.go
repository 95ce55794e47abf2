package tcp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/google/uuid"

	"github.com/meshdof/go-meshdof/pkg/types"
)

// ============================================================================
//                              连接握手
// ============================================================================

// 握手报文（定长，双向各一条）：
//
//	[4 字节 魔数 "MDF1"][16 字节 世界标识][4 字节 大端秩]
//
// 拨入方先发，监听方校验后原样回发自己的秩。世界标识不一致
// 的连接被拒绝，防止不同作业的进程串线。
const helloLen = 4 + 16 + 4

// helloMagic 握手魔数
var helloMagic = [4]byte{'M', 'D', 'F', '1'}

// writeHello 发送本端握手报文
func writeHello(c net.Conn, world uuid.UUID, rank types.Rank) error {
	var buf [helloLen]byte
	copy(buf[0:4], helloMagic[:])
	copy(buf[4:20], world[:])
	binary.BigEndian.PutUint32(buf[20:24], uint32(rank))
	_, err := c.Write(buf[:])
	return err
}

// readHello 读取并校验对端握手报文，返回对端秩
func readHello(c net.Conn, world uuid.UUID) (types.Rank, error) {
	var buf [helloLen]byte
	if _, err := io.ReadFull(c, buf[:]); err != nil {
		return types.InvalidRank, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if !bytes.Equal(buf[0:4], helloMagic[:]) {
		return types.InvalidRank, fmt.Errorf("%w: bad magic %q", ErrHandshake, buf[0:4])
	}
	if !bytes.Equal(buf[4:20], world[:]) {
		return types.InvalidRank, fmt.Errorf("%w: world mismatch", ErrHandshake)
	}
	return types.Rank(binary.BigEndian.Uint32(buf[20:24])), nil
}
