// Package meshdof 为并行自适应网格构建分布式节点编号
//
// 一张 2D 网格被连续切分到多个进程（秩）。节点坐落在单元中心，
// 可选地坐落在面中点与角点；分区边界上的节点被多个秩的单元
// 触及。MeshDOF 在一次构造调用内完成三件事：
//
//   - 本地编号：一趟网格遍历为每个被本地单元触及的节点位置赋值，
//     本秩拥有的节点获得稠密递增的局部索引，他秩拥有的获得负编码
//     占位。共享节点归全部参与秩中最小者所有。
//   - 跨进程解析：非属主秩向属主发查询（全局槽位位置），属主以
//     最终局部索引应答；查询/应答与全局偏移聚合并行推进。
//   - 合并：占位被解析为全局索引（属主偏移 + 属主局部索引），
//     连同偏移表、共享者表与构造指纹一起返回。
//
// # 架构
//
// 库不构造网格：遍历驱动（interfaces.Mesh）与幽灵层
// （interfaces.GhostLayer）由调用方提供，internal/mesh 自带一个
// 确定性四叉树森林实现供测试与演示。通信同样走接口
// （interfaces.Communicator），内置进程内世界与 TCP 全互联两种
// 实现。
//
//	遍历驱动 ──▶ 编号引擎 ──▶ 交换服务 ──┐
//	                │                     ├──▶ 编号结果
//	                └──▶ 偏移聚合 ────────┘
//
// # 使用示例
//
// 进程内多秩世界（测试、单机并行）：
//
//	world, _ := inproc.NewWorld(4)
//	// 每秩一个 goroutine：
//	node, err := meshdof.New(
//	    meshdof.WithCommunicator(world.Comm(rank)),
//	    meshdof.WithFaceNodes(true),
//	)
//	if err != nil {
//	    return err
//	}
//	defer node.Close()
//
//	forest, _ := mesh.NewUniform(rank, 4, 3)
//	num, err := node.Number(ctx, forest, forest.Ghosts())
//	if err != nil {
//	    return err
//	}
//	fmt.Println(num.OwnedCount, num.Offsets, num.Fingerprint())
//
// 跨进程 TCP 世界：
//
//	node, err := meshdof.New(
//	    meshdof.WithTCPWorld(rank,
//	        "10.0.0.1:7000", "10.0.0.2:7000", "10.0.0.3:7000"),
//	    meshdof.WithWorldID(jobID),
//	)
//
// # 错误处理
//
// 协议没有超时与重试：任何不变量违反或通信故障都立即中止整次
// 构造调用并丢弃部分结果，取消的唯一途径是调用方的 context。
// 公共哨兵错误见 errors.go，全部可用 errors.Is 判别。
//
// # 并发模型
//
// 一个 Node 绑定一个秩。Number 在调用方 goroutine 上执行遍历，
// 之后交换事件循环与偏移聚合各占一个 goroutine 汇合。Node 的
// 方法可并发调用，但同一时刻至多一次 Number 在途（交换协议
// 假定每秩单轮）。
package meshdof
