package tcp

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/meshdof/go-meshdof/pkg/types"
)

// ============================================================================
//                              帧编解码
// ============================================================================

// 帧格式（握手之后的全部流量）：
//
//	[1 字节 类别][1 字节 标志][4 字节 大端载荷长度][载荷]
//
// 标志位 flagCompressed 置位时载荷为 zstd 压缩数据，
// 长度字段记录压缩后的字节数。
const (
	// frameHeaderLen 帧头长度
	frameHeaderLen = 6

	// flagCompressed 载荷经 zstd 压缩
	flagCompressed byte = 1 << 0

	// maxFrameLen 单帧载荷长度上限
	maxFrameLen = 1 << 30
)

// 包级编解码器，EncodeAll/DecodeAll 可并发使用
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// writeFrame 向 w 写出一帧
//
// threshold > 0 且载荷不小于该值时压缩；压缩反而变大时退回原文。
func writeFrame(w io.Writer, cat types.Category, payload []byte, threshold int) error {
	if !cat.IsValid() {
		return fmt.Errorf("%w: category %d", ErrBadFrame, cat)
	}
	if len(payload) > maxFrameLen {
		return fmt.Errorf("%w: payload %d bytes", ErrBadFrame, len(payload))
	}

	var flags byte
	body := payload
	if threshold > 0 && len(payload) >= threshold {
		compressed := zstdEncoder.EncodeAll(payload, nil)
		if len(compressed) < len(payload) {
			flags |= flagCompressed
			body = compressed
		}
	}

	var header [frameHeaderLen]byte
	header[0] = byte(cat)
	header[1] = flags
	binary.BigEndian.PutUint32(header[2:], uint32(len(body)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return nil
}

// readFrame 从 r 读入一帧并按需解压
func readFrame(r io.Reader) (types.Category, []byte, error) {
	var header [frameHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return types.CategoryUnknown, nil, err
	}

	cat := types.Category(header[0])
	if !cat.IsValid() {
		return types.CategoryUnknown, nil, fmt.Errorf("%w: category %d", ErrBadFrame, header[0])
	}
	flags := header[1]
	if flags&^flagCompressed != 0 {
		return types.CategoryUnknown, nil, fmt.Errorf("%w: flags %#x", ErrBadFrame, flags)
	}

	length := binary.BigEndian.Uint32(header[2:])
	if length > maxFrameLen {
		return types.CategoryUnknown, nil, fmt.Errorf("%w: payload %d bytes", ErrBadFrame, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return types.CategoryUnknown, nil, err
	}

	if flags&flagCompressed != 0 {
		decoded, err := zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return types.CategoryUnknown, nil, fmt.Errorf("%w: zstd: %v", ErrBadFrame, err)
		}
		payload = decoded
	}
	return cat, payload, nil
}
