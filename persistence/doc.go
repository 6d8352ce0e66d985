// Copyright 2025 Panoroam Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
包 persistence 提供探索快照的持久化存储抽象及多后端实现。

# 概述

探索过程会周期性地把覆盖图与 Agent 状态序列化为快照，以便进程重启后
从中断处继续。本包只保存不透明的 JSON 负载与少量元数据，不依赖
explorer 包的具体类型。

# 核心接口

  - Store: 快照存储接口，提供 Save、Load、Delete、List 以及
    Ping / Close 健康检查与资源释放。
  - Snapshot: 存储单元，包含 ID、RunID、StepIndex、JSON 负载、
    元数据与保存时间。

# 后端实现

  - Memory: 开发与测试使用，进程退出后数据丢失。
  - File: 单机部署，每个快照一个 JSON 文件，写入采用临时文件加
    重命名保证原子性。
  - Redis: 分布式部署，快照存放于字符串键，并以有序集合按保存时间索引。

通过 NewStore 按 StoreConfig.Type 创建对应后端。
*/
package persistence
