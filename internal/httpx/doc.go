// Copyright 2025 Panoroam Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package httpx 为对外 HTTP 适配器（节点源、视觉服务）提供共享的客户端构造与错误映射。

# 概述

  - Client：带 TLS 加固（TLS 1.2+，仅 AEAD 密码套件）与超时的 *http.Client
  - MapHTTPError：将 HTTP 状态码映射为带重试标记的 *types.Error
  - ReadErrorMessage：从错误响应体中提取可读消息
*/
package httpx
