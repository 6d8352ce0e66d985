package explorer

import "github.com/BaSui01/panoroam/types"

var (
	// ErrStepInFlight 已有步骤在执行，重叠调用被拒绝
	ErrStepInFlight = types.NewError(types.ErrAgentBusy, "a step is already in flight")

	// ErrNotSeeded Agent 尚未设置起始节点
	ErrNotSeeded = types.NewError(types.ErrAgentNotSeeded, "agent has no current node; call Seed or Restore first")

	// ErrNoNavigableNode 死胡同恢复耗尽距离预算
	ErrNoNavigableNode = types.NewError(types.ErrNoNavigableNode, "no navigable node found")

	// ErrExplorationComplete 卡住且边界为空
	ErrExplorationComplete = types.NewError(types.ErrExplorationComplete, "frontier exhausted")

	// ErrNoFrontier 传送时没有可用的边界节点
	ErrNoFrontier = types.NewError(types.ErrNoFrontier, "no reachable frontier entry")

	// ErrInvalidSnapshot 快照内容不一致
	ErrInvalidSnapshot = types.NewError(types.ErrInvalidSnapshot, "invalid snapshot")
)
