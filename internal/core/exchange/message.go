package exchange

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/multiformats/go-varint"

	"github.com/meshdof/go-meshdof/pkg/types"
)

// ============================================================================
//                              报文格式
// ============================================================================

// 报文布局：
//
//	[0]     版本
//	[1]     类别（query / reply）
//	[2:6]   条目数，大端 uint32
//	[6:]    条目数 × 无符号 varint
//
// 查询报文的条目是属主槽位数组内的全局位置，
// 应答报文的条目是翻译后的属主局部索引。
const (
	// MessageVersion 报文格式版本
	MessageVersion byte = 1

	// headerLen 版本 + 类别 + 条目数
	headerLen = 6

	// MaxEntries 单条报文允许的最大条目数
	MaxEntries = math.MaxInt32
)

// EncodeMessage 编码一条交换报文
func EncodeMessage(cat types.Category, values []uint64) ([]byte, error) {
	if !cat.IsValid() {
		return nil, fmt.Errorf("%w: category %d", ErrBadMessage, cat)
	}
	if len(values) > MaxEntries {
		return nil, fmt.Errorf("%w: %d entries", ErrBadMessage, len(values))
	}

	size := headerLen
	for _, v := range values {
		size += varint.UvarintSize(v)
	}

	buf := make([]byte, size)
	buf[0] = MessageVersion
	buf[1] = byte(cat)
	binary.BigEndian.PutUint32(buf[2:headerLen], uint32(len(values)))

	n := headerLen
	for _, v := range values {
		n += varint.PutUvarint(buf[n:], v)
	}
	return buf, nil
}

// DecodeMessage 解码一条交换报文
//
// 报文必须被完整消费：尾部多余字节视为格式损坏。
func DecodeMessage(buf []byte) (types.Category, []uint64, error) {
	if len(buf) < headerLen {
		return types.CategoryUnknown, nil, fmt.Errorf("%w: %d bytes", ErrBadMessage, len(buf))
	}
	if buf[0] != MessageVersion {
		return types.CategoryUnknown, nil, fmt.Errorf("%w: version %d", ErrBadMessage, buf[0])
	}
	cat := types.Category(buf[1])
	if !cat.IsValid() {
		return types.CategoryUnknown, nil, fmt.Errorf("%w: category %d", ErrBadMessage, buf[1])
	}

	count := binary.BigEndian.Uint32(buf[2:headerLen])
	// 每个 varint 至少一字节，先于分配校验
	if uint64(count) > uint64(len(buf)-headerLen) {
		return types.CategoryUnknown, nil, fmt.Errorf("%w: %d entries in %d bytes",
			ErrBadMessage, count, len(buf))
	}

	values := make([]uint64, 0, count)
	n := headerLen
	for i := uint32(0); i < count; i++ {
		v, read, err := varint.FromUvarint(buf[n:])
		if err != nil {
			return types.CategoryUnknown, nil, fmt.Errorf("%w: entry %d: %v", ErrBadMessage, i, err)
		}
		n += read
		values = append(values, v)
	}
	if n != len(buf) {
		return types.CategoryUnknown, nil, fmt.Errorf("%w: %d trailing bytes", ErrBadMessage, len(buf)-n)
	}
	return cat, values, nil
}
