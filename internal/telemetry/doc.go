// Copyright 2025 Panoroam Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为探索服务提供集中式的 TracerProvider 和 MeterProvider 配置，
// 并以 observable gauge 形式导出覆盖度计数。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
