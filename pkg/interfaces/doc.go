// Package interfaces 定义 MeshDOF 的公共接口
//
// 本包只含接口与小型事件结构，不含任何实现；实现位于 internal/ 下，
// 每个接口文件对应一个实现目录：
//
// # 外部协作者接口（由调用方提供）
//
//   - mesh.go  - Mesh 遍历驱动（体/面/角事件回调）与 GhostLayer 幽灵层
//
// # 消息接口（由传输层实现）
//
//   - communicator.go - Communicator 非阻塞点对点 + 等待任意完成 + 集合
//
// 实现目录：
//   - internal/transport/inproc - 单进程多秩通道世界
//   - internal/transport/tcp    - 跨进程帧式 TCP 世界
//   - internal/mesh             - 四叉树测试网格（Mesh/GhostLayer 参考实现）
package interfaces
