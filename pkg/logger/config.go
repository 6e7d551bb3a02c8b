package logger

import (
	"path/filepath"

	"github.com/rs/zerolog"
)

const (
	DEBUG = "debug"
	INFO  = "info"
	WARN  = "warn"
	ERROR = "error"
	FATAL = "fatal"
)

// parseLevel 解析等级名称，未知等级按 info 处理
func parseLevel(name string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// LevelFile 单个级别对应的日志文件
type LevelFile struct {
	Level string
	Path  string
}

type Config struct {
	LevelFiles []LevelFile // 为空时只写 info 文件
	MaxSize    int         // MB
	MaxBackups int
	MaxAge     int // 天
	Level      string
	Compress   bool
	Console    bool
}

// DefaultConfig 默认 error / info 两个文件
func DefaultConfig() Config {
	return Config{
		LevelFiles: []LevelFile{
			{Level: ERROR, Path: "logs/err.log"},
			{Level: INFO, Path: "logs/info.log"},
		},
		MaxSize:    10,
		MaxBackups: 60,
		MaxAge:     7,
		Level:      INFO,
	}
}

type Builder struct {
	config  Config
	touched bool
}

func NewBuilder() *Builder {
	return &Builder{config: DefaultConfig()}
}

// SetDir 将默认的 error / info 文件放到指定目录
func (b *Builder) SetDir(dir string) *Builder {
	b.config.LevelFiles = []LevelFile{
		{Level: ERROR, Path: filepath.Join(dir, "err.log")},
		{Level: INFO, Path: filepath.Join(dir, "info.log")},
	}
	return b
}

func (b *Builder) SetMaxSize(size int) *Builder {
	b.config.MaxSize = size
	return b
}

func (b *Builder) SetMaxBackups(backups int) *Builder {
	b.config.MaxBackups = backups
	return b
}

func (b *Builder) SetMaxAge(days int) *Builder {
	b.config.MaxAge = days
	return b
}

func (b *Builder) SetLevel(level string) *Builder {
	b.config.Level = level
	return b
}

func (b *Builder) EnableCompression(enable bool) *Builder {
	b.config.Compress = enable
	return b
}

func (b *Builder) EnableConsoleOutput(enable bool) *Builder {
	b.config.Console = enable
	return b
}

// AddLevelFile 追加级别文件，首次调用会替换默认文件列表
func (b *Builder) AddLevelFile(level, path string) *Builder {
	if !b.touched {
		b.config.LevelFiles = nil
		b.touched = true
	}
	b.config.LevelFiles = append(b.config.LevelFiles, LevelFile{Level: level, Path: path})
	return b
}

func (b *Builder) Build() error {
	return initLogger(b.config)
}
