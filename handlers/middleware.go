package handlers

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs one line per request through log.
func RequestLogger(log *logrus.Entry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			fields := logrus.Fields{
				"method":  req.Method,
				"path":    req.URL.Path,
				"status":  c.Response().Status,
				"latency": time.Since(start).String(),
				"remote":  c.RealIP(),
			}
			entry := log.WithFields(fields)
			switch {
			case c.Response().Status >= 500:
				entry.Errorln("request")
			case c.Response().Status >= 400:
				entry.Warnln("request")
			default:
				entry.Debugln("request")
			}
			return nil
		}
	}
}
