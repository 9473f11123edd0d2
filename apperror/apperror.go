// Package apperror 定义业务错误分类，并携带对应的 HTTP 状态码。
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound        Kind = "NOT_FOUND"
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
	KindConflict        Kind = "CONFLICT"
	KindUnauthorized    Kind = "UNAUTHORIZED"
	KindForbidden       Kind = "FORBIDDEN"
	KindInternal        Kind = "INTERNAL"
)

// 每种错误对外的固定提示（Conflict 例外：直接返回原因）
var kindMessages = map[Kind]string{
	KindNotFound:        "resource not found",
	KindInvalidArgument: "invalid argument",
	KindConflict:        "conflict",
	KindUnauthorized:    "unauthorized",
	KindForbidden:       "forbidden",
	KindInternal:        "internal error",
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status 把错误分类映射为 HTTP 状态码。Conflict 与 InvalidArgument 一样返回 400。
func (e *Error) Status() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidArgument, KindConflict:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Public 返回给前端的提示：Conflict 给出具体原因，其余按分类返回固定文案
func (e *Error) Public() string {
	if e.Kind == KindConflict {
		return e.Message
	}
	return kindMessages[e.Kind]
}

// Detail 是可选的补充说明（Internal 不外泄）
func (e *Error) Detail() string {
	if e.Kind == KindInternal || e.Kind == KindConflict {
		return ""
	}
	return e.Message
}

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error { return &Error{Kind: kind, Message: msg, Err: err} }

func NotFound(what string) *Error { return Newf(KindNotFound, "%s not found", what) }

func InvalidArgument(format string, args ...any) *Error {
	return Newf(KindInvalidArgument, format, args...)
}

func Conflict(reason string) *Error { return New(KindConflict, reason) }

func Unauthorized() *Error { return New(KindUnauthorized, kindMessages[KindUnauthorized]) }

func Forbidden(format string, args ...any) *Error { return Newf(KindForbidden, format, args...) }

// KindOf 取错误分类；非 *Error 视为 Internal
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool { return err != nil && KindOf(err) == kind }
