// Package errors 提供统一的错误定义
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// 资源错误 (3xxx)
	CodeRunNotFound  ErrorCode = "3001"
	CodeFileNotFound ErrorCode = "3004"

	// 模型输出契约错误 (4xxx)
	CodeSchemaViolation ErrorCode = "4001"
	CodeIndexMismatch   ErrorCode = "4002"
	CodeMergeInvalid    ErrorCode = "4003"
	CodeCandidateEmpty  ErrorCode = "4004"

	// 协作方与阶段错误 (5xxx)
	CodeCollaboratorFailed ErrorCode = "5001"
	CodeStageFailed        ErrorCode = "5002"
	CodeIOFailure          ErrorCode = "5003"
	CodeDatabaseError      ErrorCode = "5004"
	CodeCacheError         ErrorCode = "5005"
	CodeVectorDBError      ErrorCode = "5006"
	CodeStorageError       ErrorCode = "5007"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg = msg + " (" + e.Detail + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码匹配，便于 errors.Is(err, ErrSchemaViolation)
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetail 返回带详细信息的副本，预定义错误不会被修改
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithError 返回带底层错误的副本
func (e *AppError) WithError(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Newf 创建带格式化消息的应用错误
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeNotFound, CodeRunNotFound, CodeFileNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeSchemaViolation, CodeIndexMismatch, CodeMergeInvalid, CodeCandidateEmpty:
		return http.StatusUnprocessableEntity
	case CodeCollaboratorFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrRunNotFound  = New(CodeRunNotFound, "run not found")
	ErrFileNotFound = New(CodeFileNotFound, "file not found")

	ErrSchemaViolation = New(CodeSchemaViolation, "model output violates schema")
	ErrIndexMismatch   = New(CodeIndexMismatch, "declared index does not match position")
	ErrMergeInvalid    = New(CodeMergeInvalid, "merge result inconsistent with source")
	ErrCandidateEmpty  = New(CodeCandidateEmpty, "no candidates to judge")

	ErrCollaboratorFailed = New(CodeCollaboratorFailed, "collaborator call failed")
	ErrStageFailed        = New(CodeStageFailed, "stage failed")
	ErrIOFailure          = New(CodeIOFailure, "io failure")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}

// HasCode 判断错误链上是否存在指定错误码
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// IsContractViolation 模型输出契约类错误
func IsContractViolation(err error) bool {
	return HasCode(err, CodeSchemaViolation) || HasCode(err, CodeIndexMismatch) || HasCode(err, CodeMergeInvalid)
}
