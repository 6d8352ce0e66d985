// Package ctxkeys 定义跨包传递的 context 键。
//
// explorer 在每一步开始时写入 run id 与步序号，节点源和视觉服务的客户端
// 读取后附加到日志与请求头，便于把外部调用与具体步骤对应起来。
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	runIDKey     contextKey = "run_id"
	stepIndexKey contextKey = "step_index"
)

// WithRunID 设置 RunID
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID 获取 RunID
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(runIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithStepIndex 设置当前步序号（从 1 开始）
func WithStepIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, stepIndexKey, index)
}

// StepIndex 获取当前步序号
func StepIndex(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(stepIndexKey).(int)
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}
