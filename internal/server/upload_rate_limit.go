package server

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/datalake/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/datalake/internal/observability/metrics"
	"github.com/smallbiznis/datalake/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	rateLimitReasonClientRate = "client-rate"
	rateLimitReasonFeedBusy   = "feed-busy"
)

// UploadRateLimit throttles feed uploads per client address and holds the
// feed lock while the handler runs.
func (s *Server) UploadRateLimit(feed string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		ctx := c.Request.Context()

		res, err := s.limiter.Allow(ctx, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("upload rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			denyUpload(c, endpoint, rateLimitReasonClientRate, retryAfterSeconds(res), s.obsMetrics)
			return
		}

		release, err := s.limiter.LockFeed(ctx, feed)
		if errors.Is(err, ratelimit.ErrFeedBusy) {
			denyUpload(c, endpoint, rateLimitReasonFeedBusy, 1, s.obsMetrics)
			return
		}
		if err != nil {
			logger.FromContext(ctx).Warn("upload feed lock failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.FromContext(ctx).Warn("upload feed unlock failed", zap.Error(err))
			}
		}()

		s.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
		c.Next()
	}
}

func denyUpload(c *gin.Context, endpoint, reason string, retryAfter int, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("upload rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	metrics.RecordRateLimitDenied(ctx, endpoint, reason)

	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-Rate-Limited-Reason", reason)
	if reason == rateLimitReasonFeedBusy {
		AbortWithError(c, ratelimit.ErrFeedBusy)
		return
	}
	AbortWithError(c, ErrRateLimited)
}

func retryAfterSeconds(res *ratelimit.Result) int {
	secs := int(res.RetryAfter.Seconds())
	if res.RetryAfter > 0 && float64(secs) < res.RetryAfter.Seconds() {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
