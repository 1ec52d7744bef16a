package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// HashToken 返回 token 的 SHA-256 十六进制摘要，Redis 里不存明文。
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// PutResetToken 保存 token -> userID，过期自动失效。
func PutResetToken(ctx context.Context, rdb *rd.Client, token, userID string, ttl time.Duration) error {
	return rdb.Set(ctx, ResetTokenKey(HashToken(token)), userID, ttl).Err()
}

// TakeResetToken 取出并删除 token，保证只能用一次。found=false 表示不存在或已过期。
func TakeResetToken(ctx context.Context, rdb *rd.Client, token string) (string, bool, error) {
	userID, err := rdb.GetDel(ctx, ResetTokenKey(HashToken(token))).Result()
	if errors.Is(err, rd.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return userID, true, nil
}

// DeleteResetToken 撤销 token（例如邮件发送失败时）。
func DeleteResetToken(ctx context.Context, rdb *rd.Client, token string) error {
	return rdb.Del(ctx, ResetTokenKey(HashToken(token))).Err()
}
