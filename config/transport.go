// Package config 提供统一的配置管理
package config

import (
	"fmt"
	"net"
	"time"
)

// TransportConfig TCP 通信器配置
//
// 描述一个完整的 TCP 世界：本秩的监听地址与全体成员的地址表。
// 进程内通信器不走配置，由调用方直接构造并注入。
type TransportConfig struct {
	// Rank 本进程的秩
	Rank int32 `json:"rank"`

	// Peers 按秩索引的成员地址表，长度即世界大小
	// Peers[Rank] 是本进程自己的监听地址。
	Peers []string `json:"peers,omitempty"`

	// WorldID 世界标识
	// 握手时校验，拒绝来自其他作业的连接。为空时不校验。
	WorldID string `json:"world_id,omitempty"`

	// DialTimeout 单次拨号超时
	// 默认值: 10s
	DialTimeout Duration `json:"dial_timeout"`

	// HandshakeTimeout 握手超时
	// 默认值: 5s
	HandshakeTimeout Duration `json:"handshake_timeout"`

	// MaxConns 监听端同时接受的最大连接数
	// 默认值: 64
	MaxConns int `json:"max_conns"`

	// CompressionThreshold 帧载荷压缩阈值（字节）
	// 超过该大小的载荷以 zstd 压缩传输；0 表示关闭压缩。
	// 默认值: 4096
	CompressionThreshold int `json:"compression_threshold"`
}

// DefaultTransportConfig 返回默认的 TCP 通信器配置
//
// 默认配置不含成员表：单进程场景不需要 TCP 世界。
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Rank:                 0,
		DialTimeout:          Duration(10 * time.Second),
		HandshakeTimeout:     Duration(5 * time.Second),
		MaxConns:             64,
		CompressionThreshold: 4096,
	}
}

// Validate 验证 TCP 通信器配置的有效性
func (c *TransportConfig) Validate() error {
	if c.DialTimeout < 0 || c.HandshakeTimeout < 0 {
		return ErrNegativeDuration
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("%w: max_conns %d", ErrInvalidTransport, c.MaxConns)
	}
	if c.CompressionThreshold < 0 {
		return fmt.Errorf("%w: compression_threshold %d", ErrInvalidTransport, c.CompressionThreshold)
	}
	if len(c.Peers) == 0 {
		// 未配置 TCP 世界
		return nil
	}
	if c.Rank < 0 || int(c.Rank) >= len(c.Peers) {
		return fmt.Errorf("%w: rank %d outside peer table of %d",
			ErrInvalidTransport, c.Rank, len(c.Peers))
	}
	for i, addr := range c.Peers {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("%w: address %q for rank %d: %v",
				ErrInvalidTransport, addr, i, err)
		}
	}
	return nil
}
