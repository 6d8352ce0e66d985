// Copyright 2025 Panoroam Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

// Package config 提供 Panoroam 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → PANOROAM_ 环境变量 的顺序合并，
// 覆盖探索参数、调度、视觉服务、节点源、截图、快照存储、HTTP、
// 日志与遥测。HotReloadManager 轮询配置文件，日志级别与步间隔
// 可在运行期生效，其余变更记录为需重启。
package config
