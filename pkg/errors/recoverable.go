package errors

import (
	stderrors "errors"
	"fmt"
)

// RecoverableError 表示已被调用方吞掉并降级处理的错误。
// 持有它的结果仍然可用，只是质量打了折扣；与 *AppError（致命）在类型上区分开。
type RecoverableError struct {
	// Op 发生降级的步骤，例如 "intent"、"research"、"critique"
	Op  string
	Err error
}

// Recover 构造 RecoverableError；err 为 nil 时返回 nil
func Recover(op string, err error) *RecoverableError {
	if err == nil {
		return nil
	}
	return &RecoverableError{Op: op, Err: err}
}

func (e *RecoverableError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s degraded: %v", e.Op, e.Err)
}

func (e *RecoverableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsRecoverable 判断错误链上是否存在 RecoverableError
func IsRecoverable(err error) bool {
	var re *RecoverableError
	return stderrors.As(err, &re)
}
