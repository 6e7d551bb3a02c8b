package exchange

import (
	"errors"
	"fmt"
	"net/http"
)

// 错误分类，使用 errors.Is 判断
var (
	ErrUnavailable = errors.New("exchange unavailable")
	ErrAuth        = errors.New("exchange auth error")
	ErrProtocol    = errors.New("exchange protocol error")
)

// 视为鉴权失败的 Binance 错误码
var authCodes = map[int64]struct{}{
	-1021: {}, // timestamp 超出 recvWindow
	-1022: {}, // 签名无效
	-2014: {}, // API key 格式错误
	-2015: {}, // key / IP / 权限无效
}

// Error 交易所调用错误
type Error struct {
	Kind   error // ErrUnavailable / ErrAuth / ErrProtocol
	Op     string
	Status int   // HTTP 状态码，传输层错误为 0
	Code   int64 // Binance 错误码
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Status != 0 {
		s += fmt.Sprintf(" (status %d", e.Status)
		if e.Code != 0 {
			s += fmt.Sprintf(", code %d", e.Code)
		}
		s += ")"
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// classify 按 HTTP 状态码与 Binance 错误码分类
func classify(status int, code int64) error {
	if _, ok := authCodes[code]; ok {
		return ErrAuth
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusTooManyRequests || status == http.StatusTeapot:
		return ErrUnavailable
	case status >= 500:
		return ErrUnavailable
	}
	return ErrProtocol
}
