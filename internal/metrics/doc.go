// Copyright 2025 Panoroam Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
包 metrics 提供基于 Prometheus 的探索指标采集能力，覆盖
HTTP、探索步骤、视觉决策与覆盖度四大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
由 internal/server 通过 /metrics 暴露。

# 核心类型

  - Collector：指标收集器，实现 explorer.Metrics 接口，
    可直接通过 explorer.WithMetrics 注入 Agent。

# 主要能力

  - HTTP 指标：请求总数与耗时，按 method/path/status 分组，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 步骤指标：按 mode/status 统计步骤数与耗时，按 kind 统计循环防护触发。
  - 视觉指标：按回退原因统计决策数，记录每次决策的模型调用次数。
  - 覆盖度指标：已访问节点、前沿大小、空间格子数与累计里程 Gauge。
*/
package metrics
