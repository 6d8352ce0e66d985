// Copyright 2025 Panoroam Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package testutil 提供 panoroam 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试、场景测试与浸泡测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue / WaitFor，支持超时轮询等待条件满足
  - 序列分析: MaxAlternatingRun，统计访问序列中最长的 A,B,A,B 交替段
  - 数据工具: MustJSON / MustParseJSON

# 子包

  - testutil/mocks: GraphSource（内存隐式图节点源，支持别名、单向边、
    死胡同与错误注入）、MockProvider（脚本化视觉模型）、
    MockCapturer（观测采集记录器）与 RandomDecider

# 使用示例

	src := mocks.Grid(5, 5, 15, origin)
	agent := explorer.New(src, explorer.DefaultConfig())
	_, err := agent.Seed(testutil.TestContext(t), nodesource.ByID("r0c0"))
*/
package testutil
