package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaMarkOnce 通过 SETNX 锁保证"同一 id 只处理一次"。
const luaMarkOnce = `
local key = KEYS[1]
local ttlSec = tonumber(ARGV[1])
if redis.call('SETNX', key, '1') == 1 then
  redis.call('EXPIRE', key, ttlSec)
  return 1
end
return 0
`

// MarkOnce 幂等标记：
// - 首次标记返回 true
// - 重复标记返回 false
func MarkOnce(ctx context.Context, rdb *rd.Client, scope, id string, ttl time.Duration) (bool, error) {
	ttlSec := int64(ttl / time.Second)
	if ttlSec <= 0 {
		ttlSec = 1
	}
	n, err := rdb.Eval(ctx, luaMarkOnce, []string{OnceKey(scope, id)}, ttlSec).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UnmarkOnce 处理失败时撤销标记，允许下次重试。
func UnmarkOnce(ctx context.Context, rdb *rd.Client, scope, id string) error {
	return rdb.Del(ctx, OnceKey(scope, id)).Err()
}
