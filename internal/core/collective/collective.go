// Package collective 实现全局偏移聚合
//
// 遍历结束后每秩知道自己的拥有节点数；本包经一次 Allgather
// 收齐全表并做独占前缀和，得到每秩的全局基准偏移。与
// 查询/应答交换没有数据依赖，两者由编排方并发执行。
package collective

import (
	"context"
	"fmt"

	"golang.org/x/exp/constraints"

	"github.com/meshdof/go-meshdof/internal/util/logger"
	"github.com/meshdof/go-meshdof/pkg/interfaces"
	"github.com/meshdof/go-meshdof/pkg/types"
)

// 包级别日志实例
var log = logger.Logger("collective")

// Service 偏移聚合服务
type Service struct {
	comm interfaces.Communicator
}

// NewService 创建偏移聚合服务
func NewService(comm interfaces.Communicator) *Service {
	return &Service{comm: comm}
}

// Offsets 聚合各秩拥有数为全局偏移表
//
// 集合操作：世界内所有秩必须各调用恰好一次。
// 返回表长 WorldSize+1，末项为全网节点总数。
func (s *Service) Offsets(ctx context.Context, owned int64) (types.OffsetTable, error) {
	if owned < 0 {
		return nil, fmt.Errorf("%w: owned count %d", ErrBadCount, owned)
	}

	counts, err := s.comm.Allgather(ctx, uint64(owned))
	if err != nil {
		return nil, fmt.Errorf("gather owned counts: %w", err)
	}
	if len(counts) != s.comm.Size() {
		return nil, fmt.Errorf("%w: gathered %d counts in world of %d",
			ErrBadCount, len(counts), s.comm.Size())
	}

	offsets := make(types.OffsetTable, 0, len(counts)+1)
	for _, o := range ExclusiveScan(counts) {
		offsets = append(offsets, types.GlobalNodeIndex(o))
	}
	if err := offsets.Validate(); err != nil {
		return nil, err
	}

	log.Debug("偏移聚合完成",
		"rank", s.comm.Rank(),
		"owned", owned,
		"total", offsets.Total())
	return offsets, nil
}

// ExclusiveScan 返回输入的独占前缀和
//
// 结果长度为 len(values)+1：out[0] = 0，out[i+1] = out[i] + values[i]。
func ExclusiveScan[T constraints.Integer](values []T) []T {
	out := make([]T, len(values)+1)
	for i, v := range values {
		out[i+1] = out[i] + v
	}
	return out
}
