// Rate limit

package main

import (
	"net"
	"strings"
	"sync"
	"time"

	"github.com/AgustinSRG/glog"
)

// Rate limit configuration
type RateLimiterConfig struct {
	// True if enabled
	Enabled bool

	// Comma separated list of IP ranges not subject to the limits (* for all)
	Whitelist string

	// Max number of websocket connections per IP
	MaxConnections int

	// Max token requests per second per IP
	MaxRequestsPerSecond int

	// Request burst
	RequestBurst int

	// Interval to perform cleanup on the request count map (seconds)
	CleanupIntervalSeconds int64
}

// Token requests made by an IP
type requestCounter struct {
	// Request count
	count int

	// Last time the count was updated (Unix seconds)
	timestamp int64
}

// Forgets the requests allowed by the time passed since the last update
func (rc *requestCounter) update(now int64, maxRequestsPerSecond int) {
	secondsPassed := now - rc.timestamp

	if secondsPassed <= 0 {
		return
	}

	allowedRequests := int64(maxRequestsPerSecond) * secondsPassed

	if allowedRequests > int64(rc.count) {
		rc.count = 0
	} else {
		rc.count -= int(allowedRequests)
	}

	rc.timestamp = now
}

// Per IP rate limiter for token requests and websocket connections
type RateLimiter struct {
	// Configuration
	config RateLimiterConfig

	// Mutex for the struct
	mu *sync.Mutex

	// Logger
	logger *glog.Logger

	// List of IP ranges
	whitelistArray []*net.IPNet

	// Whitelist all (*)
	whitelistAll bool

	// Map (IP -> Connections count)
	connectionsCount map[string]int

	// Max requests accepted before rejecting
	requestLimit int

	// Map (IP -> Request counter)
	requestCount map[string]*requestCounter

	// Last cleanup timestamp (Unix seconds)
	lastCleanup int64
}

// Parses the whitelist
func parseWhitelist(whitelist string, logger *glog.Logger) (ranges []*net.IPNet, all bool) {
	ranges = make([]*net.IPNet, 0)

	if whitelist == "" {
		return ranges, false
	}

	if whitelist == "*" {
		return ranges, true
	}

	for _, part := range strings.Split(whitelist, ",") {
		part = strings.TrimSpace(part)

		if part == "" {
			continue
		}

		_, rang, err := net.ParseCIDR(part)

		if err != nil {
			logger.Warningf("Config Error: Invalid IP range provided: %v", part)
			continue
		}

		ranges = append(ranges, rang)
	}

	return ranges, false
}

// Creates new instance of RateLimiter
func NewRateLimiter(config RateLimiterConfig, logger *glog.Logger) *RateLimiter {
	whitelistArray, whitelistAll := parseWhitelist(config.Whitelist, logger)

	requestLimit := config.RequestBurst

	if requestLimit < config.MaxRequestsPerSecond {
		requestLimit = config.MaxRequestsPerSecond
	}

	return &RateLimiter{
		config:           config,
		mu:               &sync.Mutex{},
		logger:           logger,
		whitelistArray:   whitelistArray,
		whitelistAll:     whitelistAll,
		connectionsCount: make(map[string]int),
		requestLimit:     requestLimit,
		requestCount:     make(map[string]*requestCounter),
		lastCleanup:      time.Now().Unix(),
	}
}

// Checks if IP is excepted from the rate limit
func (rl *RateLimiter) isIPExempted(ipStr string) bool {
	ip := net.ParseIP(ipStr)

	if ip == nil || rl.whitelistAll {
		return true
	}

	for _, rang := range rl.whitelistArray {
		if rang.Contains(ip) {
			return true
		}
	}

	return false
}

// Call when a websocket connection is started
// If this method returns false, the connection should be rejected
func (rl *RateLimiter) StartConnection(ipStr string) bool {
	if !rl.config.Enabled || rl.config.MaxConnections <= 0 || rl.isIPExempted(ipStr) {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	oldCount := rl.connectionsCount[ipStr]

	if oldCount >= rl.config.MaxConnections {
		return false
	}

	rl.connectionsCount[ipStr] = oldCount + 1

	return true
}

// Call when a websocket connection ends
func (rl *RateLimiter) EndConnection(ipStr string) {
	if !rl.config.Enabled || rl.config.MaxConnections <= 0 || rl.isIPExempted(ipStr) {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	oldCount := rl.connectionsCount[ipStr]

	if oldCount <= 1 {
		delete(rl.connectionsCount, ipStr)
	} else {
		rl.connectionsCount[ipStr] = oldCount - 1
	}
}

// Removes the counters that went back to zero
// The mutex must be held
func (rl *RateLimiter) cleanup(now int64) {
	rl.logger.Debug("Performing cleanup of request counters")

	delCount := 0

	for ip, rc := range rl.requestCount {
		rc.update(now, rl.config.MaxRequestsPerSecond)

		if rc.count <= 0 {
			delete(rl.requestCount, ip)
			delCount++
		}
	}

	rl.lastCleanup = now

	rl.logger.Debugf("Cleanup finished. Total counters removed: %v", delCount)
}

// Counts a token request
// Returns false if the request should be rejected
func (rl *RateLimiter) CountRequest(ipStr string) bool {
	if !rl.config.Enabled || rl.config.MaxRequestsPerSecond <= 0 || rl.isIPExempted(ipStr) {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now().Unix()

	if now-rl.lastCleanup >= rl.config.CleanupIntervalSeconds {
		rl.cleanup(now)
	}

	rc := rl.requestCount[ipStr]

	if rc == nil {
		rl.requestCount[ipStr] = &requestCounter{
			count:     1,
			timestamp: now,
		}
		return true
	}

	rc.update(now, rl.config.MaxRequestsPerSecond)

	if rc.count >= rl.requestLimit {
		return false
	}

	rc.count++

	return true
}
