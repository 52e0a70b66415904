package apperror

import (
	"errors"
	"net/http"
)

// Kind 对错误分类，决定 HTTP 状态码以及消息能否暴露给客户端。
type Kind string

const (
	KindValidation   Kind = "validation"
	KindTooLarge     Kind = "too_large"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindUnavailable  Kind = "unavailable"
	KindInternal     Kind = "internal"
)

var statusByKind = map[Kind]int{
	KindValidation:   http.StatusBadRequest,
	KindTooLarge:     http.StatusRequestEntityTooLarge,
	KindUnauthorized: http.StatusUnauthorized,
	KindForbidden:    http.StatusForbidden,
	KindNotFound:     http.StatusNotFound,
	KindUnavailable:  http.StatusServiceUnavailable,
	KindInternal:     http.StatusInternalServerError,
}

// Error 携带分类、面向客户端的消息以及可选的内部原因。
type Error struct {
	kind    Kind
	message string
	cause   error
	exposed bool
}

func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{kind: kind, message: message, cause: err}
}

func Validation(message string) *Error { return New(KindValidation, message) }

func TooLarge(message string) *Error { return New(KindTooLarge, message) }

func NotFound(message string) *Error { return New(KindNotFound, message) }

func Forbidden(message string) *Error { return New(KindForbidden, message) }

// Server 是消息可以直接返回给客户端的 500 错误，例如运维需要介入的配置问题。
func Server(message string) *Error {
	return &Error{kind: KindInternal, message: message, exposed: true}
}

func (e *Error) Kind() Kind {
	if e == nil {
		return KindInternal
	}
	return e.kind
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return string(e.kind) + ": " + e.message + ": " + e.cause.Error()
	}
	return string(e.kind) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Public 表示消息可以原样返回给客户端。内部错误只返回调用方给定的通用消息。
func (e *Error) Public() bool {
	return e != nil && (e.kind != KindInternal || e.exposed)
}

// As 提取错误链中的 *Error。
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return nil
}

// Status 返回错误对应的 HTTP 状态码，未分类的错误视为 500。
func Status(err error) int {
	typed := As(err)
	if typed == nil {
		return http.StatusInternalServerError
	}
	if status, ok := statusByKind[typed.kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}
