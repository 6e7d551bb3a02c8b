package safe

import (
	"fmt"
	"runtime"
	"strings"
)

// PanicError 由 panic 转换而来的错误
type PanicError struct {
	Value   any
	Callers []string
}

func (e *PanicError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("panic: %v", e.Value))
	for _, c := range e.Callers {
		sb.WriteString("\n\t")
		sb.WriteString(c)
	}
	return sb.String()
}

// Run 执行 fn，fn 内部的 panic 转为 *PanicError 返回
func Run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Callers: callers(3)}
		}
	}()
	return fn()
}

// Go 启动 goroutine，panic 交给 onPanic 处理
func Go(fn func(), onPanic func(error)) {
	go func() {
		if err := Run(func() error { fn(); return nil }); err != nil && onPanic != nil {
			onPanic(err)
		}
	}()
}

func callers(skip int) []string {
	const maxDepth = 32
	out := make([]string, 0, maxDepth)
	for i := skip; i < skip+maxDepth; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		out = append(out, fmt.Sprintf("%s:%d", file, line))
	}
	return out
}
