// Copyright 2025 Panoroam Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package main 提供 Panoroam 探索程序入口。

# 概述

cmd/panoroam 按配置装配节点源、视觉决策、截图采集、快照存储与
HTTP 状态面，然后驱动调度器逐步探索全景图，直到边界耗尽、
达到步数上限或收到退出信号。

# 子命令

  - run      从 --seed（节点 id 或 "lat,lng"）或 --resume 快照开始探索
  - version  打印构建注入的版本信息
  - health   请求运行中实例的 /healthz

# 运行期行为

  - 配置热重载：修改配置文件中的 log.level 与 runner.step_delay 立即生效
  - 快照：每 runner.snapshot_every 步以及退出时写入 persistence 存储
  - 优雅关闭：SIGINT/SIGTERM 取消上下文，调度器保存快照后退出，
    HTTP 服务与遥测 provider 在 server.shutdown_timeout 内关闭
*/
package main
