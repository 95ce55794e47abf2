package peering

import "errors"

var (
	// ErrBadTransition 非法的对端状态迁移
	ErrBadTransition = errors.New("peering: illegal state transition")

	// ErrBadPeerRank 对端秩与查询方向矛盾
	ErrBadPeerRank = errors.New("peering: peer rank contradicts query direction")
)
