// HTTP server

package main

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AgustinSRG/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const DEFAULT_HTTP_RESPONSE = "OK - Channel Token Issuer"

// Max size of the token request body
const MAX_REQUEST_BODY_SIZE = 16 * 1024

// HTTP server configuration
type HttpServerConfig struct {
	// HTTP enabled?
	HttpEnabled bool

	// Server port
	InsecurePort int

	// Server bind address
	BindAddress string

	// TLS enabled?
	TlsEnabled bool

	// TLS port
	TlsPort int

	// Server bind address for TLS
	TlsBindAddress string

	// Certificate file
	TlsCertificateFile string

	// Key file
	TlsPrivateKeyFile string

	// Number of second to reload TLS config
	TlsCheckReloadSeconds int

	// Path of the token endpoint
	IssuePath string

	// Websocket prefix
	WebsocketPrefix string

	// True to expose the metrics
	MetricsEnabled bool

	// Path of the metrics endpoint
	MetricsPath string

	// True to log requests
	LogRequests bool
}

// Error response
type ErrorResponse struct {
	// Always false
	Success bool `json:"success"`

	// Error message
	Error string `json:"error"`
}

// HTTP server
type HttpServer struct {
	// Server config
	config HttpServerConfig

	// Logger
	logger *glog.Logger

	// Mutex
	mu *sync.Mutex

	// Next connection ID
	nextConnectionId uint64

	// Websocket connection upgrader
	upgrader *websocket.Upgrader

	// Token issuer
	issuer *Issuer

	// Auth controller
	authController *AuthController

	// Rate limiter
	rateLimiter *RateLimiter

	// Issuance registry (optional)
	registry IssuanceRegistry

	// Metrics
	metrics *IssuerMetrics
}

// Creates HTTP server
func CreateHttpServer(config HttpServerConfig, logger *glog.Logger, issuer *Issuer, authController *AuthController, rateLimiter *RateLimiter, registry IssuanceRegistry, metrics *IssuerMetrics) *HttpServer {
	return &HttpServer{
		config: config,
		logger: logger,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mu:               &sync.Mutex{},
		nextConnectionId: 0,
		issuer:           issuer,
		authController:   authController,
		rateLimiter:      rateLimiter,
		registry:         registry,
		metrics:          metrics,
	}
}

// Gets an unique ID for a connection
func (server *HttpServer) GetConnectionId() uint64 {
	server.mu.Lock()
	defer server.mu.Unlock()

	id := server.nextConnectionId

	server.nextConnectionId++

	return id
}

// Serves HTTP request
func (server *HttpServer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ip, _, err := net.SplitHostPort(req.RemoteAddr)

	if err != nil {
		server.logger.Errorf("Error parsing request IP: %v", err)
		w.WriteHeader(200)
		fmt.Fprint(w, DEFAULT_HTTP_RESPONSE)
		return
	}

	requestId := uuid.NewString()

	if server.config.LogRequests {
		server.logger.Infof("[%v] [FROM: %v] %v %v", requestId, ip, req.Method, req.URL.Path)
	}

	switch {
	case req.URL.Path == server.config.IssuePath:
		server.handleIssue(w, req, ip, requestId)
	case server.config.MetricsEnabled && req.URL.Path == server.config.MetricsPath:
		server.metrics.Handler().ServeHTTP(w, req)
	case strings.HasPrefix(req.URL.Path, server.config.WebsocketPrefix):
		server.handleWebsocket(w, req, ip)
	default:
		w.WriteHeader(200)
		fmt.Fprint(w, DEFAULT_HTTP_RESPONSE)
	}
}

// Sets the CORS headers
func setCorsHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Max-Age", "86400")
}

// Writes a JSON response
func (server *HttpServer) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	data, err := json.Marshal(body)

	if err != nil {
		server.logger.Errorf("Error encoding response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// Writes an error response
func (server *HttpServer) writeError(w http.ResponseWriter, status int, msg string) {
	server.writeJSON(w, status, ErrorResponse{
		Success: false,
		Error:   msg,
	})
}

// Handles token requests
func (server *HttpServer) handleIssue(w http.ResponseWriter, req *http.Request, ip string, requestId string) {
	setCorsHeaders(w)

	if req.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if req.Method != http.MethodPost {
		server.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if !server.rateLimiter.CountRequest(ip) {
		server.metrics.ObserveRejected(ERROR_CODE_RATE_LIMIT)
		server.writeError(w, http.StatusTooManyRequests, "Too many requests")
		return
	}

	var issueRequest IssueRequest

	err := json.NewDecoder(http.MaxBytesReader(w, req.Body, MAX_REQUEST_BODY_SIZE)).Decode(&issueRequest)

	if err != nil {
		var maxBytesError *http.MaxBytesError

		if errors.As(err, &maxBytesError) {
			server.writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		} else {
			server.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		}

		return
	}

	// Caller input is checked before the bearer token
	err = server.issuer.ValidateRequest(&issueRequest, time.Now())

	if err != nil {
		server.metrics.ObserveRejected(ERROR_CODE_INVALID_REQUEST)
		server.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !server.authController.ValidateIssueToken(getBearerToken(req), issueRequest.ChannelName) {
		server.metrics.ObserveRejected(ERROR_CODE_AUTH)
		server.writeError(w, http.StatusUnauthorized, "Invalid or missing authorization token")
		return
	}

	res, err := server.IssueTokens(&issueRequest, requestId)

	if err != nil {
		code := getIssueErrorCode(err)

		if code == ERROR_CODE_INVALID_REQUEST {
			server.writeError(w, getErrorCodeStatus(code), err.Error())
		} else {
			// Do not leak configuration details
			server.writeError(w, getErrorCodeStatus(code), "Could not issue tokens")
		}

		return
	}

	server.writeJSON(w, http.StatusOK, res)
}

// Handles websocket connections
func (server *HttpServer) handleWebsocket(w http.ResponseWriter, req *http.Request, ip string) {
	if !server.rateLimiter.StartConnection(ip) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "Too many connections")
		return
	}

	c, err := server.upgrader.Upgrade(w, req, nil)

	if err != nil {
		server.rateLimiter.EndConnection(ip)
		server.logger.Errorf("Error upgrading connection: %v", err)
		return
	}

	ch := CreateConnectionHandler(c, server, ip)
	go ch.Run()
}

// Runs insecure HTTP server
func (server *HttpServer) RunInsecure(wg *sync.WaitGroup) {
	defer wg.Done()

	port := server.config.InsecurePort
	bind_addr := server.config.BindAddress

	server.logger.Infof("[HTTP] Listening on %v:%v", bind_addr, port)
	errHTTP := http.ListenAndServe(bind_addr+":"+strconv.Itoa(port), server)

	if errHTTP != nil {
		server.logger.Errorf("Error starting HTTP server: %v", errHTTP)
	}
}

// Runs TLS HTTPS server
func (server *HttpServer) RunTls(wg *sync.WaitGroup) {
	defer wg.Done()

	port := server.config.TlsPort
	bind_addr := server.config.TlsBindAddress

	certificateLoader, err := NewTlsCertificateLoader(TlsCertificateLoaderConfig{
		CertificatePath:    server.config.TlsCertificateFile,
		KeyPath:            server.config.TlsPrivateKeyFile,
		CheckReloadSeconds: server.config.TlsCheckReloadSeconds,
	}, server.logger.CreateChildLogger("[CertificateLoader] "))

	if err != nil {
		server.logger.Errorf("Error starting HTTPS server: %v", err)
		return
	}

	go certificateLoader.RunReloadThread()
	defer certificateLoader.Close()

	tlsServer := http.Server{
		Addr:    bind_addr + ":" + strconv.Itoa(port),
		Handler: server,
		TLSConfig: &tls.Config{
			GetCertificate: certificateLoader.GetCertificate,
		},
	}

	server.logger.Infof("[HTTPS] Listening on %v:%v", bind_addr, port)

	errSSL := tlsServer.ListenAndServeTLS("", "")

	if errSSL != nil {
		server.logger.Errorf("Error starting HTTPS server: %v", errSSL)
	}
}

// Runs the server
// wg - Wait group
func (server *HttpServer) Run(wg *sync.WaitGroup) {
	defer wg.Done()

	wgInternal := &sync.WaitGroup{}

	if server.config.TlsEnabled {
		wgInternal.Add(1)
		go server.RunTls(wgInternal)
	}

	if server.config.HttpEnabled {
		wgInternal.Add(1)
		go server.RunInsecure(wgInternal)
	}

	// Wait for all threads to finish

	wgInternal.Wait()
}
