package bootstrap

import (
	"io"

	"pagebuilder-go-server/internal/logger"

	"github.com/rs/zerolog"
)

// NewLogger 生产环境输出 JSON，其他环境输出可读格式
func NewLogger(env *Env) (zerolog.Logger, io.Closer, error) {
	return logger.New().
		Level(env.LogLevel).
		ToFile(env.LogFile).
		Console(!env.IsProduction()).
		Make()
}
