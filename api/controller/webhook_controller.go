package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pagebuilder-go-server/domain/entity"
	domainRepo "pagebuilder-go-server/domain/repository"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	svix "github.com/svix/svix-webhooks/go"
)

// Clerk 事件类型
const (
	eventUserCreated = "user.created"
	eventUserUpdated = "user.updated"
	eventUserDeleted = "user.deleted"
)

// WebhookController 同步 Clerk 用户到本地 users 表
// 本地用户表只用于协同时显示用户名，页面不依赖它
type WebhookController struct {
	userRepo domainRepo.UserRepository
	verifier *svix.Webhook // 未配置密钥时为 nil
	initErr  error
	log      zerolog.Logger
}

// NewWebhookController secret 为空时跳过签名验证（仅限开发环境）
func NewWebhookController(userRepo domainRepo.UserRepository, secret string, log zerolog.Logger) *WebhookController {
	wc := &WebhookController{userRepo: userRepo, log: log}
	if secret == "" {
		log.Warn().Msg("[Webhook] ⚠️ 未配置 CLERK_WEBHOOK_SECRET，跳过签名验证（仅限开发环境）")
		return wc
	}
	wc.verifier, wc.initErr = svix.NewWebhook(secret)
	if wc.initErr != nil {
		log.Error().Err(wc.initErr).Msg("[Webhook] ❌ 初始化 Webhook 验证器失败")
	}
	return wc
}

// ClerkWebhookPayload Clerk Webhook 事件结构
type ClerkWebhookPayload struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ClerkUserData Clerk 用户数据结构
type ClerkUserData struct {
	ID             string `json:"id"`
	EmailAddresses []struct {
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	ImageURL  string `json:"image_url"`
}

// toEntity 邮箱取第一个，姓名为 first + last
func (d ClerkUserData) toEntity(now time.Time) *entity.User {
	u := &entity.User{
		ID:        d.ID,
		Name:      strings.TrimSpace(d.FirstName + " " + d.LastName),
		AvatarURL: d.ImageURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(d.EmailAddresses) > 0 {
		u.Email = d.EmailAddresses[0].EmailAddress
	}
	return u
}

var errMissingUserID = errors.New("missing user id")

// HandleClerkWebhook 处理 Clerk Webhook 回调
// POST /webhook/clerk
// 仓库写入失败时返回 500，由 Svix 重投
func (wc *WebhookController) HandleClerkWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无法读取请求体"})
		return
	}

	if err := wc.verify(body, c.Request.Header); err != nil {
		if wc.initErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook 配置错误"})
			return
		}
		wc.log.Warn().Err(err).Msg("[Webhook] ❌ 签名验证失败")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "签名验证失败"})
		return
	}

	var payload ClerkWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		wc.log.Warn().Err(err).Msg("[Webhook] ❌ 解析 Webhook 失败")
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 JSON 格式"})
		return
	}

	wc.log.Info().Str("type", payload.Type).Msg("[Webhook] 📥 收到事件")

	switch payload.Type {
	case eventUserCreated, eventUserUpdated:
		err = wc.syncUser(payload.Data)
	case eventUserDeleted:
		err = wc.deleteUser(payload.Data)
	default:
		wc.log.Debug().Str("type", payload.Type).Msg("[Webhook] 忽略事件")
	}

	switch {
	case errors.Is(err, errMissingUserID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少用户 ID"})
	case err != nil:
		wc.log.Error().Err(err).Str("type", payload.Type).Msg("[Webhook] ❌ 事件处理失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "事件处理失败"})
	default:
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

// verify 只取 svix-* 三个头参与校验
func (wc *WebhookController) verify(body []byte, h http.Header) error {
	if wc.initErr != nil {
		return wc.initErr
	}
	if wc.verifier == nil {
		return nil
	}
	headers := http.Header{}
	for _, k := range []string{"svix-id", "svix-timestamp", "svix-signature"} {
		headers.Set(k, h.Get(k))
	}
	return wc.verifier.Verify(body, headers)
}

func (wc *WebhookController) syncUser(data json.RawMessage) error {
	var d ClerkUserData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("decode user: %w", err)
	}
	if d.ID == "" {
		return errMissingUserID
	}

	user := d.toEntity(time.Now())
	if err := wc.userRepo.Upsert(user); err != nil {
		return fmt.Errorf("upsert user %s: %w", user.ID, err)
	}
	wc.log.Info().Str("user", user.ID).Str("email", user.Email).Msg("[Webhook] ✅ 用户同步成功")
	return nil
}

// deleteUser 用户创建的页面保留，creator_id 仍指向已删除的用户
func (wc *WebhookController) deleteUser(data json.RawMessage) error {
	var d struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("decode deleted user: %w", err)
	}
	if d.ID == "" {
		return errMissingUserID
	}

	if err := wc.userRepo.Delete(d.ID); err != nil {
		return fmt.Errorf("delete user %s: %w", d.ID, err)
	}
	wc.log.Info().Str("user", d.ID).Msg("[Webhook] 🗑️ 用户已删除")
	return nil
}
