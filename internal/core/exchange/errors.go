package exchange

import "errors"

// 交换协议相关错误
//
// 所有错误对一次构造调用都是致命的：协议没有重试，
// 任何校验失败或传输故障都会中止整次调用。
var (
	// ErrBadMessage 报文格式损坏
	ErrBadMessage = errors.New("malformed exchange message")
	// ErrBadCompletion 完成事件无法匹配任何待决步骤
	ErrBadCompletion = errors.New("unexpected completion")
	// ErrCountMismatch 查询或应答的条目数与登记不符
	ErrCountMismatch = errors.New("entry count mismatch")
	// ErrBadQuery 查询位置不可翻译
	ErrBadQuery = errors.New("untranslatable query position")
	// ErrBadReply 应答索引不可回填
	ErrBadReply = errors.New("unusable reply index")
	// ErrBadInputs 交换输入不自洽
	ErrBadInputs = errors.New("inconsistent exchange inputs")
	// ErrIdlePeer 注册表中存在无事可做的对端
	ErrIdlePeer = errors.New("peer with no exchange work")
)
