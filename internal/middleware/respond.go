package middleware

import (
	"errors"
	"net/http"

	"storefront/internal/apperr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Fail 按错误类别写统一的 JSON 信封并终止后续 handler。
// 校验错误附带底层原因，内部错误只记日志不外露。
func Fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	msg := apperr.Message(err)

	var e *apperr.Error
	if kind == apperr.KindValidation && errors.As(err, &e) && e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if status >= http.StatusInternalServerError {
		if log, ok := c.Get(loggerKey); ok {
			log.(*zap.Logger).Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(err))
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"code": status, "kind": kind, "msg": msg})
}

const loggerKey = "storefront.logger"

// Logger 注入请求级日志并记录访问日志。
func Logger(log *zap.Logger) gin.HandlerFunc {
	log = log.With(zap.String("component", "http"))
	return func(c *gin.Context) {
		c.Set(loggerKey, log)
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.String("client_ip", c.ClientIP()))
	}
}
