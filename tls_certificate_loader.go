// TLS certificate loader, with automatic reload

package main

import (
	"crypto/tls"
	"os"
	"sync"
	"time"

	"github.com/AgustinSRG/glog"
)

// Default interval to check for certificate changes (seconds)
const DEFAULT_TLS_CHECK_RELOAD_SECONDS = 60

// Certificate loader configuration
type TlsCertificateLoaderConfig struct {
	// Path to the certificate file
	CertificatePath string

	// Path to the private key file
	KeyPath string

	// Interval to check for changes (seconds)
	CheckReloadSeconds int
}

// Loads the TLS certificate, reloading it when the files change
type TlsCertificateLoader struct {
	// Configuration
	config TlsCertificateLoaderConfig

	// Logger
	logger *glog.Logger

	// Mutex for the struct
	mu *sync.Mutex

	// Current certificate
	cert *tls.Certificate

	// Modification time of the certificate file
	certModTime time.Time

	// Modification time of the key file
	keyModTime time.Time

	// Channel to stop the reload thread
	closeChan chan struct{}

	// Ensures the channel is closed once
	closeOnce *sync.Once
}

// Gets the modification times of the certificate and key files
func getCertificateModTimes(certPath string, keyPath string) (time.Time, time.Time, error) {
	statCert, err := os.Stat(certPath)

	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	statKey, err := os.Stat(keyPath)

	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	return statCert.ModTime(), statKey.ModTime(), nil
}

// Creates certificate loader, loading it for the first time
func NewTlsCertificateLoader(config TlsCertificateLoaderConfig, logger *glog.Logger) (*TlsCertificateLoader, error) {
	if config.CheckReloadSeconds <= 0 {
		config.CheckReloadSeconds = DEFAULT_TLS_CHECK_RELOAD_SECONDS
	}

	certModTime, keyModTime, err := getCertificateModTimes(config.CertificatePath, config.KeyPath)

	if err != nil {
		return nil, err
	}

	cer, err := tls.LoadX509KeyPair(config.CertificatePath, config.KeyPath)

	if err != nil {
		return nil, err
	}

	return &TlsCertificateLoader{
		config:      config,
		logger:      logger,
		mu:          &sync.Mutex{},
		cert:        &cer,
		certModTime: certModTime,
		keyModTime:  keyModTime,
		closeChan:   make(chan struct{}),
		closeOnce:   &sync.Once{},
	}, nil
}

// Reloads the certificate if the files changed
// Returns true if reloaded
func (loader *TlsCertificateLoader) checkReload() bool {
	certModTime, keyModTime, err := getCertificateModTimes(loader.config.CertificatePath, loader.config.KeyPath)

	if err != nil {
		loader.logger.Errorf("Error checking TLS certificate: %v", err)
		return false
	}

	if certModTime.Equal(loader.certModTime) && keyModTime.Equal(loader.keyModTime) {
		return false // No changes
	}

	cer, err := tls.LoadX509KeyPair(loader.config.CertificatePath, loader.config.KeyPath)

	if err != nil {
		loader.logger.Errorf("Error loading TLS key pair: %v", err)
		return false
	}

	loader.mu.Lock()

	loader.cert = &cer
	loader.certModTime = certModTime
	loader.keyModTime = keyModTime

	loader.mu.Unlock()

	loader.logger.Info("Reloaded TLS certificate")

	return true
}

// Runs thread to automatically reload the certificate
func (loader *TlsCertificateLoader) RunReloadThread() {
	ticker := time.NewTicker(time.Duration(loader.config.CheckReloadSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			loader.checkReload()
		case <-loader.closeChan:
			return
		}
	}
}

// Stops the reload thread
func (loader *TlsCertificateLoader) Close() {
	loader.closeOnce.Do(func() {
		close(loader.closeChan)
	})
}

// Gets the current certificate (tls.Config.GetCertificate)
func (loader *TlsCertificateLoader) GetCertificate(clientHello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	loader.mu.Lock()
	defer loader.mu.Unlock()

	return loader.cert, nil
}
