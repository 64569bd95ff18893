package bootstrap

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Env 环境变量配置结构
type Env struct {
	DatabaseURL    string   // 数据库连接字符串
	DBDriver       string   // postgres（默认）或 mysql
	ClerkSecretKey string   // Clerk API 密钥
	WebhookSecret  string   // Clerk Webhook 签名密钥
	Port           string   // 服务端口
	AllowedOrigins []string // CORS / WebSocket 白名单
	LogLevel       string   // debug / info / warn / error
	LogFile        string   // 为空输出到 stdout
	AppEnv         string   // production 时使用 JSON 日志
	TemplatesFile  string   // 外部模板目录，为空使用内置目录

	// DotEnvLoaded 是否读到了 .env 文件
	DotEnvLoaded bool
}

// 未配置 ALLOWED_ORIGINS 时的默认白名单
var defaultOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// LoadEnv 加载环境变量
// 开发环境从 .env 文件加载，生产环境从系统环境变量读取
func LoadEnv() (*Env, error) {
	// 尝试加载 .env 文件（生产环境可能没有）
	loaded := godotenv.Load() == nil

	env := &Env{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DBDriver:       strings.ToLower(os.Getenv("DB_DRIVER")),
		ClerkSecretKey: os.Getenv("CLERK_SECRET_KEY"),
		WebhookSecret:  os.Getenv("CLERK_WEBHOOK_SECRET"),
		Port:           os.Getenv("PORT"),
		AllowedOrigins: parseList(os.Getenv("ALLOWED_ORIGINS")),
		LogLevel:       os.Getenv("LOG_LEVEL"),
		LogFile:        os.Getenv("LOG_FILE"),
		AppEnv:         os.Getenv("APP_ENV"),
		TemplatesFile:  os.Getenv("TEMPLATES_FILE"),
		DotEnvLoaded:   loaded,
	}

	// 默认值
	if env.Port == "" {
		env.Port = "8080"
	}
	if env.DBDriver == "" {
		env.DBDriver = "postgres"
	}
	if len(env.AllowedOrigins) == 0 {
		env.AllowedOrigins = defaultOrigins
	}

	// 必需变量检查
	if env.DatabaseURL == "" {
		return nil, errors.New("缺少必需环境变量: DATABASE_URL")
	}
	return env, nil
}

// IsProduction 生产环境
func (e *Env) IsProduction() bool {
	return e.AppEnv == "production"
}

// parseList 逗号分隔，忽略空项
func parseList(input string) []string {
	var out []string
	for _, p := range strings.Split(input, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
