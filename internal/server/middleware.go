// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/pdiddy/book-finder/internal/logger"
	"github.com/pdiddy/book-finder/internal/metrics"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

// requestID reuses an incoming X-Request-ID or mints one, stores it in the
// request context for logger.For and echoes it in the response.
func requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		id := req.Header.Get(RequestIDHeader)
		if id == "" {
			id = logger.NewRequestID()
		}
		c.SetRequest(req.WithContext(logger.ContextWithID(req.Context(), id)))
		c.Response().Header().Set(RequestIDHeader, id)
		return next(c)
	}
}

// requestLogger logs every request at info level once it has been served.
func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		req := c.Request()
		logger.For(req.Context()).WithFields(logrus.Fields{
			"method": req.Method,
			"path":   req.URL.Path,
			"query":  req.URL.RawQuery,
			"status": c.Response().Status,
			"remote": c.RealIP(),
			"agent":  req.UserAgent(),
			"took":   time.Since(start).String(),
		}).Info("http.request")
		return nil
	}
}

// observe records request counts and latency by route pattern.
func observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		path := c.Path()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Response().Status)
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request().Method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
		return nil
	}
}
