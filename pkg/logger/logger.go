package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const TimeFormat = "2006-01-02 15:04:05"

var (
	logMu   sync.Mutex
	writers []*lumberjack.Logger
)

func initLogger(config Config) error {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLevel(config.Level))

	files := config.LevelFiles
	if len(files) == 0 {
		files = []LevelFile{{Level: INFO, Path: "logs/info.log"}}
	}

	// 已配置等级的位掩码，用于 info 文件兜底
	var configured uint16
	for _, f := range files {
		configured |= 1 << uint(parseLevel(f.Level)+1)
	}

	outs := make([]io.Writer, 0, len(files)+1)
	ljs := make([]*lumberjack.Logger, 0, len(files))
	for _, f := range files {
		if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
			return err
		}
		lj := &lumberjack.Logger{
			Filename:   f.Path,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
		ljs = append(ljs, lj)
		outs = append(outs, &levelFilterWriter{
			level:      parseLevel(f.Level),
			configured: configured,
			Writer:     zerolog.ConsoleWriter{Out: lj, TimeFormat: TimeFormat, NoColor: true},
		})
	}

	if config.Console {
		outs = append(outs, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: TimeFormat})
	}

	logMu.Lock()
	defer logMu.Unlock()

	closeWriters()
	writers = ljs
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(outs...)).With().Timestamp().Logger()
	return nil
}

// levelFilterWriter 只写入自身等级；info 文件兜底未配置的等级，error 文件兜底 fatal
type levelFilterWriter struct {
	level      zerolog.Level
	configured uint16
	io.Writer
}

func (w *levelFilterWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level == w.level {
		return w.Writer.Write(p)
	}

	unconfigured := w.configured&(1<<uint(level+1)) == 0
	switch w.level {
	case zerolog.InfoLevel:
		if unconfigured && level != zerolog.FatalLevel {
			return w.Writer.Write(p)
		}
	case zerolog.ErrorLevel:
		if level == zerolog.FatalLevel && unconfigured {
			return w.Writer.Write(p)
		}
	}
	return len(p), nil
}

func closeWriters() {
	for _, lj := range writers {
		_ = lj.Close()
	}
	writers = nil
}

// L 返回全局 logger
func L() zerolog.Logger {
	return log.Logger
}

func Info() *zerolog.Event {
	return log.Logger.Info()
}

func Debug() *zerolog.Event {
	return log.Logger.Debug()
}

func Error() *zerolog.Event {
	return log.Logger.Error()
}

func Warn() *zerolog.Event {
	return log.Logger.Warn()
}

func Fatal() *zerolog.Event {
	return log.Logger.Fatal()
}

// Err 直接记录错误
func Err(err error) *zerolog.Event {
	return log.Logger.Err(err)
}

// Close 关闭所有文件
func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	closeWriters()
}
