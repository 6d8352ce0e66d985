// Copyright 2025 Panoroam Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package types 提供 panoroam 的全局共享错误类型。

# 概述

types 是最底层的公共包，不依赖任何内部包。explorer、vision、nodesource
等上层模块通过 Error / ErrorCode 表达结构化错误，并用 Retryable 标记
区分可重试与不可重试的失败。

# 核心类型

  - Error / ErrorCode: 结构化错误，含 HTTP 状态码、Retryable、Provider 标记
  - IsRetryable / GetErrorCode: 沿 errors.As 链提取错误信息
*/
package types
