package types

// ============================================================================
//                              Category - 消息类别
// ============================================================================

// Category 点对点消息类别
//
// 交换协议区分两类报文：查询（高秩向低秩属主询问槽位翻译）
// 与应答（属主返回翻译后的拥有索引）。集合类别仅由传输层
// 内部用于 Allgather 帧，不出现在协议层。
type Category uint8

const (
	// CategoryUnknown 未知类别
	CategoryUnknown Category = iota
	// CategoryQuery 查询报文
	CategoryQuery
	// CategoryReply 应答报文
	CategoryReply
	// CategoryCollective 集合报文（传输层内部）
	CategoryCollective
)

// IsValid 检查类别是否有效
func (c Category) IsValid() bool {
	return c > CategoryUnknown && c <= CategoryCollective
}

// String 返回消息类别的字符串表示
func (c Category) String() string {
	switch c {
	case CategoryQuery:
		return "query"
	case CategoryReply:
		return "reply"
	case CategoryCollective:
		return "collective"
	default:
		return "unknown"
	}
}
