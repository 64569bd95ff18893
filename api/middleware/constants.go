package middleware

// ContextKeyUserID Auth 写入 gin.Context 的用户 ID（Clerk user_id）
const ContextKeyUserID = "userID"
