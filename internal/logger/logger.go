package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const permission = 0664

// Builder 日志构造器：默认输出到 stdout
type Builder struct {
	writer  io.Writer
	path    string
	level   string
	console bool
}

func New() *Builder {
	return &Builder{}
}

// ToWriter 指定输出（测试里传 bytes.Buffer）
func (b *Builder) ToWriter(w io.Writer) *Builder {
	b.writer = w
	return b
}

// ToFile 追加写入日志文件，优先级高于 ToWriter
func (b *Builder) ToFile(path string) *Builder {
	b.path = path
	return b
}

// Level debug / info / warn / error，空值为 info
func (b *Builder) Level(level string) *Builder {
	b.level = level
	return b
}

// Console 开发环境使用人类可读格式
func (b *Builder) Console(enabled bool) *Builder {
	b.console = enabled
	return b
}

// Make 构造 zerolog.Logger，返回的 io.Closer 在使用文件输出时需要关闭
func (b *Builder) Make() (zerolog.Logger, io.Closer, error) {
	var (
		w      io.Writer = os.Stdout
		closer io.Closer = io.NopCloser(nil)
	)
	if b.writer != nil {
		w = b.writer
	}
	if b.path != "" {
		f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		w = zerolog.SyncWriter(f)
		closer = f
	}
	if b.console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(b.level))
	if err != nil || b.level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), closer, nil
}
