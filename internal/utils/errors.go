package utils

import "fmt"

// AppError wraps an operation, the KPI it concerns, a human-facing message, and the underlying error.
type AppError struct {
	Op    string
	KPIID string
	Msg   string
	Err   error
}

func (e *AppError) Error() string {
	prefix := e.Op
	if e.KPIID != "" {
		prefix = fmt.Sprintf("%s[kpi=%s]", e.Op, e.KPIID)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", prefix, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// NewKPIError constructs an AppError scoped to one KPI.
func NewKPIError(op, kpiID, msg string, err error) error {
	return &AppError{Op: op, KPIID: kpiID, Msg: msg, Err: err}
}
