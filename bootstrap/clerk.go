package bootstrap

import (
	"errors"

	"github.com/clerk/clerk-sdk-go/v2"
)

// InitClerk 设置 Clerk 全局密钥，JWT 校验依赖它拉取公钥
func InitClerk(secret string) error {
	if secret == "" {
		return errors.New("未找到 CLERK_SECRET_KEY")
	}
	clerk.SetKey(secret)
	return nil
}
