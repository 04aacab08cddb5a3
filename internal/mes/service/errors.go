package service

import "fmt"

// StructuralError BOM结构错误
// 无根/多根、根物料与产出物料不匹配等。对整次展开是致命的，不留部分状态。
type StructuralError struct {
	Message string
}

func (e *StructuralError) Error() string {
	return e.Message
}

func structuralErrorf(format string, args ...interface{}) *StructuralError {
	return &StructuralError{Message: fmt.Sprintf(format, args...)}
}

// DependencyError 工序依赖错误
// 前置工序未完成即启动、创建时缺少必需依赖等。只影响单次操作。
type DependencyError struct {
	Message string
}

func (e *DependencyError) Error() string {
	return e.Message
}

func dependencyErrorf(format string, args ...interface{}) *DependencyError {
	return &DependencyError{Message: fmt.Sprintf(format, args...)}
}

// ValidationError 参数校验错误
// 在任何写入发生之前拒绝。
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ConflictError 排程写入冲突
// 单条排程提交时发现工作单元已被占用。批量排程时冲突作为结果记录返回，
// 不走错误通道。
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func conflictErrorf(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}
