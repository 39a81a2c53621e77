// Main

package main

import (
	"strings"
	"sync"

	"github.com/AgustinSRG/genv"
	"github.com/AgustinSRG/glog"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load() // Load env vars

	// Configure logs

	logger := glog.CreateRootLogger(glog.LoggerConfiguration{
		ErrorEnabled:   genv.GetEnvBool("LOG_ERROR", true),
		WarningEnabled: genv.GetEnvBool("LOG_WARNING", true),
		InfoEnabled:    genv.GetEnvBool("LOG_INFO", true),
		DebugEnabled:   genv.GetEnvBool("LOG_DEBUG", false),
		TraceEnabled:   genv.GetEnvBool("LOG_TRACE", false),
	}, glog.StandardLogFunction)

	// Issuer

	issuer := NewIssuer(IssuerConfig{
		AppId:                genv.GetEnvString("APP_ID", ""),
		AppCertificate:       genv.GetEnvString("APP_CERTIFICATE", ""),
		DefaultExpireSeconds: uint32(genv.GetEnvInt("TOKEN_DEFAULT_EXPIRE_SECONDS", DEFAULT_TOKEN_EXPIRE_SECONDS)),
		PublisherRoles:       strings.Split(genv.GetEnvString("PUBLISHER_ROLES", "tutor"), ","),
	})

	if err := issuer.CheckConfig(); err != nil {
		// Requests will fail until the credentials are set
		logger.Errorf("Config Error: %v", err)
	}

	// Auth

	authController := NewAuthController(AuthConfiguration{
		IssueSecret: genv.GetEnvString("ISSUE_AUTH_SECRET", ""),
	})

	if !authController.IsAuthRequired() {
		logger.Warningf("ISSUE_AUTH_SECRET is not set. Token requests are not authenticated.")
	}

	// Rate limiter

	rateLimiter := NewRateLimiter(RateLimiterConfig{
		Enabled:                genv.GetEnvBool("RATE_LIMIT_ENABLED", true),
		Whitelist:              genv.GetEnvString("RATE_LIMIT_WHITELIST", ""),
		MaxConnections:         genv.GetEnvInt("RATE_LIMIT_MAX_CONNECTIONS", 4),
		MaxRequestsPerSecond:   genv.GetEnvInt("RATE_LIMIT_MAX_REQUESTS_PER_SECOND", 10),
		RequestBurst:           genv.GetEnvInt("RATE_LIMIT_REQUEST_BURST", 20),
		CleanupIntervalSeconds: int64(genv.GetEnvInt("RATE_LIMIT_CLEANUP_INTERVAL_SECONDS", 60)),
	}, logger.CreateChildLogger("[RateLimiter] "))

	// Issuance registry

	var registry IssuanceRegistry

	if genv.GetEnvBool("REDIS_ENABLED", false) {
		redisRegistry := NewRedisIssuanceRegistry(RedisIssuanceRegistryConfig{
			Host:      genv.GetEnvString("REDIS_HOST", "localhost"),
			Port:      genv.GetEnvInt("REDIS_PORT", 6379),
			Password:  genv.GetEnvString("REDIS_PASSWORD", ""),
			UseTls:    genv.GetEnvBool("REDIS_TLS", false),
			KeyPrefix: genv.GetEnvString("REDIS_KEY_PREFIX", "channel-tokens:"),
		})

		defer redisRegistry.Close()

		registry = redisRegistry
	}

	// Setup server

	server := CreateHttpServer(HttpServerConfig{
		HttpEnabled:           genv.GetEnvBool("HTTP_ENABLED", true),
		InsecurePort:          genv.GetEnvInt("HTTP_PORT", 80),
		BindAddress:           genv.GetEnvString("BIND_ADDRESS", ""),
		TlsEnabled:            genv.GetEnvBool("TLS_ENABLED", false),
		TlsPort:               genv.GetEnvInt("TLS_PORT", 443),
		TlsBindAddress:        genv.GetEnvString("TLS_BIND_ADDRESS", ""),
		TlsCertificateFile:    genv.GetEnvString("TLS_CERTIFICATE", ""),
		TlsPrivateKeyFile:     genv.GetEnvString("TLS_PRIVATE_KEY", ""),
		TlsCheckReloadSeconds: genv.GetEnvInt("TLS_CHECK_RELOAD_SECONDS", DEFAULT_TLS_CHECK_RELOAD_SECONDS),
		IssuePath:             genv.GetEnvString("ISSUE_PATH", "/token"),
		WebsocketPrefix:       genv.GetEnvString("WEBSOCKET_PREFIX", "/ws"),
		MetricsEnabled:        genv.GetEnvBool("METRICS_ENABLED", false),
		MetricsPath:           genv.GetEnvString("METRICS_PATH", "/metrics"),
		LogRequests:           genv.GetEnvBool("LOG_REQUESTS", true),
	}, logger, issuer, authController, rateLimiter, registry, NewIssuerMetrics())

	// Run server

	wg := &sync.WaitGroup{}

	wg.Add(1)
	go server.Run(wg)

	// Wait for all threads to finish

	wg.Wait()
}
