package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RequestLogger writes one access log line per request.
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.String("host", req.Host),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", c.RealIP()),
			}
			if k := TenantKey(c); k != "" {
				fields = append(fields, zap.String("tenant", k))
			}
			if s := SessionFrom(c); s != nil {
				fields = append(fields, zap.Uint64("user_id", s.UserID))
			}
			if err != nil {
				logger.Warn("request", append(fields, zap.Error(err))...)
			} else {
				logger.Info("request", fields...)
			}
			return nil
		}
	}
}

// Recover turns a handler panic into a 500 and logs the stack.
func Recover(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					if r == http.ErrAbortHandler {
						panic(r)
					}
					logger.Error("panic recovered",
						zap.String("panic", fmt.Sprint(r)),
						zap.String("path", c.Request().URL.Path),
						zap.ByteString("stack", debug.Stack()))
					err = echo.NewHTTPError(http.StatusInternalServerError, "internal error")
				}
			}()
			return next(c)
		}
	}
}
