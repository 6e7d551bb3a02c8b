package sigproc

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/utrading/utrading-liq-monitor/pkg/logger"
)

// NotifyContext 收到 SIGINT / SIGTERM / SIGQUIT 时取消返回的 context
// 第二个信号直接退出进程
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
			return
		}

		sig := <-sigChan
		logger.Warn().Str("signal", sig.String()).Msg("received second signal, exiting now")
		os.Exit(1)
	}()

	return ctx, cancel
}
