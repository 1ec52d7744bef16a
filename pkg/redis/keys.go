package redis

import "fmt"

// ResetTokenKey 密码重置 token 的键，只保存 token 的 SHA-256 摘要。
func ResetTokenKey(tokenHash string) string {
	return fmt.Sprintf("storefront:auth:reset:%s", tokenHash)
}

// OnceKey 标记某个作用域下的某个 id 已经处理过。
func OnceKey(scope, id string) string {
	return fmt.Sprintf("storefront:once:%s:%s", scope, id)
}

// RateLimitKey 限流计数键，subject 形如 user:<id> 或 ip:<addr>。
func RateLimitKey(route, subject string) string {
	return fmt.Sprintf("storefront:rate_limit:%s:%s", route, subject)
}
