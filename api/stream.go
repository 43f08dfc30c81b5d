package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// streamNotifications pushes the pending notification list as server-sent
// events. A frame is written on connect and whenever the list changes.
func streamNotifications(svc Service, interval time.Duration, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return echo.NewHTTPError(http.StatusInternalServerError, "stream unsupported")
		}
		h := c.Response().Header()
		h.Set(echo.HeaderContentType, "text/event-stream")
		h.Set(echo.HeaderCacheControl, "no-cache")
		h.Set(echo.HeaderConnection, "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		c.Response().WriteHeader(http.StatusOK)
		flusher.Flush()

		ctx := c.Request().Context()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var last []byte
		for {
			list, err := svc.Notifications(ctx)
			if err != nil {
				logger.WithError(err).Warn("notification stream poll failed")
			} else {
				data, err := sonic.Marshal(list)
				if err != nil {
					return err
				}
				if string(data) != string(last) {
					if _, err := c.Response().Write([]byte("data: ")); err != nil {
						return nil
					}
					if _, err := c.Response().Write(data); err != nil {
						return nil
					}
					if _, err := c.Response().Write([]byte("\n\n")); err != nil {
						return nil
					}
					flusher.Flush()
					last = data
				}
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	}
}
