package handlers

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lms/internal/logger"
	"lms/internal/metrics"
	"lms/internal/services"
)

const (
	RequestIDHeader = "X-Request-ID"

	// DefaultTenantHeader carries the acting institute. Authentication sits in
	// front of this service and is trusted to set it.
	DefaultTenantHeader = "X-Institute-ID"

	instituteKey = "institute_id"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		ctx := logger.WithValue(c.Request.Context(), logger.RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// Tenant resolves the acting institute from header and rejects requests
// without a valid one.
func Tenant(header string) gin.HandlerFunc {
	if header == "" {
		header = DefaultTenantHeader
	}
	return func(c *gin.Context) {
		raw := c.GetHeader(header)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":  services.CodeInvalidRequest,
				"error": fmt.Sprintf("missing %s header", header),
			})
			return
		}
		instituteID, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":  services.CodeInvalidRequest,
				"error": fmt.Sprintf("invalid %s header", header),
			})
			return
		}
		c.Set(instituteKey, instituteID)
		ctx := logger.WithValue(c.Request.Context(), logger.InstituteIDKey, instituteID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func instituteFrom(c *gin.Context) uuid.UUID {
	v, _ := c.Get(instituteKey)
	id, _ := v.(uuid.UUID)
	return id
}

func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		method := c.Request.Method
		metrics.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(c.Request.Context(), "panic recovered", fmt.Errorf("%v", r),
					"stack", string(debug.Stack()),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":  services.CodeInternal,
					"error": "internal server error",
				})
			}
		}()
		c.Next()
	}
}
