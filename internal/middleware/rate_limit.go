package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"teamchat/internal/utils"

	"github.com/gin-gonic/gin"
)

// RateLimiter stores rate limiting information
type RateLimiter struct {
	visitors map[string]*Visitor
	mu       *sync.RWMutex
	rate     int
	burst    int
	cleanup  time.Duration
}

// Visitor represents a visitor's rate limiting data
type Visitor struct {
	limiter  *TokenBucket
	lastSeen time.Time
}

// TokenBucket implements token bucket algorithm
type TokenBucket struct {
	tokens   int
	capacity int
	rate     int
	lastTime time.Time
	mu       *sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rate, burst int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*Visitor),
		mu:       &sync.RWMutex{},
		rate:     rate,
		burst:    burst,
		cleanup:  time.Minute * 3,
	}

	go rl.cleanupVisitors()

	return rl
}

// Allow checks if request is allowed
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	visitor, exists := rl.visitors[key]
	if !exists {
		visitor = &Visitor{
			limiter: &TokenBucket{
				tokens:   rl.burst,
				capacity: rl.burst,
				rate:     rl.rate,
				lastTime: time.Now(),
				mu:       &sync.Mutex{},
			},
			lastSeen: time.Now(),
		}
		rl.visitors[key] = visitor
	}

	visitor.lastSeen = time.Now()
	return visitor.limiter.Allow()
}

// Allow method for TokenBucket
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastTime)
	tb.lastTime = now

	// Add tokens based on elapsed time
	tokensToAdd := int(elapsed.Seconds()) * tb.rate
	tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}

	return false
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// cleanupVisitors removes old visitors
func (rl *RateLimiter) cleanupVisitors() {
	for {
		time.Sleep(rl.cleanup)

		rl.mu.Lock()
		for key, visitor := range rl.visitors {
			if time.Since(visitor.lastSeen) > rl.cleanup {
				delete(rl.visitors, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Global rate limiters
var (
	// General API rate limiter
	apiLimiter = NewRateLimiter(100, 20)

	// WebSocket connection rate limiter
	wsLimiter = NewRateLimiter(10, 5)

	// Message send rate limiter
	messageLimiter = NewRateLimiter(30, 10)
)

// RateLimit middleware for general API endpoints
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := getClientKey(c)

		if !apiLimiter.Allow(key) {
			c.Header("X-RateLimit-Limit", "100")
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "60")

			utils.ErrorResponse(c, http.StatusTooManyRequests, "Rate limit exceeded")
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", "100")
		c.Next()
	}
}

// WebSocketRateLimit middleware for WebSocket connections
func WebSocketRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := getClientKey(c)

		if !wsLimiter.Allow(key) {
			utils.ErrorResponse(c, http.StatusTooManyRequests, "WebSocket connection limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}

// MessageRateLimit middleware for message sends
func MessageRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Use user ID if authenticated, otherwise IP
		key := c.GetString("user_id")
		if key == "" {
			key = getClientKey(c)
		}

		if !messageLimiter.Allow(key) {
			utils.ErrorResponse(c, http.StatusTooManyRequests, "Message rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}

// Helper function to get client identifier
func getClientKey(c *gin.Context) string {
	// Try to get user ID first (for authenticated users)
	if userID := c.GetString("user_id"); userID != "" {
		return "user:" + userID
	}

	// Fall back to IP address
	ip := c.ClientIP()

	// Handle cases where we're behind a proxy
	if forwardedFor := c.GetHeader("X-Forwarded-For"); forwardedFor != "" {
		ips := strings.Split(forwardedFor, ",")
		if len(ips) > 0 {
			ip = strings.TrimSpace(ips[0])
		}
	} else if realIP := c.GetHeader("X-Real-IP"); realIP != "" {
		ip = realIP
	}

	return "ip:" + ip
}

// Logger middleware with request timing info
func Logger() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	})
}
