package redirect

import (
	"errors"
	"net/http"
)

// Error 跳转决策过程中返回给客户端的错误
type Error struct {
	Code    int
	Message string
}

// Error 实现error接口
func (e *Error) Error() string {
	return e.Message
}

// StatusCode 返回对应的HTTP状态码
func (e *Error) StatusCode() int {
	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// 定义错误代码
const (
	// ErrNotFound 路径不在识别的前缀下
	ErrNotFound = iota + 1
	// ErrBadRequest 服务名为空或包含非法字符
	ErrBadRequest
	// ErrMisconfiguredExternal 选中外网区域但未配置公网域名
	ErrMisconfiguredExternal
)

// NewNotFoundError 创建路径不存在错误
func NewNotFoundError(message string) *Error {
	return &Error{Code: ErrNotFound, Message: message}
}

// NewBadRequestError 创建请求无效错误
func NewBadRequestError(message string) *Error {
	return &Error{Code: ErrBadRequest, Message: message}
}

// NewMisconfiguredExternalError 创建外网配置缺失错误
func NewMisconfiguredExternalError(message string) *Error {
	return &Error{Code: ErrMisconfiguredExternal, Message: message}
}

// StatusCode 返回err对应的HTTP状态码，非本包错误一律为500
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode()
	}
	return http.StatusInternalServerError
}
