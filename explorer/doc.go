// Copyright 2025 Panoroam Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package explorer 实现全景图探索的单步状态机与调度器。

# 概述

Agent 每次 AdvanceStep 前进一个节点：向节点源查询当前节点的出边，
结合覆盖图（已访问/边界）、寻路器、循环守卫与视觉决策服务选出下一跳，
经节点源落位后写回覆盖图，并产出一条 StepRecord。

同一 Agent 任意时刻最多只有一个步骤在执行；重叠调用立即返回
ErrStepInFlight，不排队。

# 模式

  - exploring：多个候选，咨询视觉服务
  - pathfinding_to_frontier：卡住时按 BFS / 聚类路由机械前进
  - single_option：过滤后只剩一个候选
  - dead_end_recovery：当前节点无出边，沿上次航向投射寻找可导航节点
  - teleport_to_frontier：强制跳转到最近的边界节点

# 调度

Runner 以固定延迟（上一步返回后再计时）驱动 AdvanceStep，
将步骤记录发布到 StepSink，并按间隔把快照写入 persistence.Store。
*/
package explorer
