// Copyright 2025 Panoroam Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
包 server 提供探索服务的只读 HTTP 面：生命周期管理、健康检查、
状态查询、快照浏览与 Prometheus 指标暴露。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误传播。
Run 以阻塞方式运行直到 context 结束，便于放入 errgroup 与 Runner
一同调度。Handlers 汇总全部端点，并挂载 Recovery 与 Instrument 中间件。

# 端点

  - GET /healthz：存活探针
  - GET /readyz：逐个运行已注册的 HealthCheck（快照存储默认注册）
  - GET /status：Agent 统计与 Runner 状态
  - GET /metrics：promhttp 暴露的 Prometheus 指标
  - GET /snapshots、GET /snapshots/{id}：配置了 persistence.Store 时启用

# 核心类型

  - Manager：服务器管理器，提供 Start/Run/Shutdown/Errors/Addr。
  - Config：监听地址、读写超时、空闲超时、最大请求头与关闭超时。
  - Handlers：端点集合，通过 HandlerOption 注入 Runner、Store 与指标。
*/
package server
