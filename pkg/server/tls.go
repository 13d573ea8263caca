package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"mercator-hq/relay/pkg/config"
)

// certReloadInterval is how often certificate files are checked for changes.
const certReloadInterval = 5 * time.Minute

// expiryWarningDays triggers a warning log for certificates close to expiry.
const expiryWarningDays = 30

// certReloader serves the current certificate to the TLS stack and picks
// up renewed files without a restart.
type certReloader struct {
	certFile string
	keyFile  string
	interval time.Duration

	mu       sync.RWMutex
	cert     *tls.Certificate
	certTime time.Time
	keyTime  time.Time
}

func newCertReloader(certFile, keyFile string, interval time.Duration) *certReloader {
	return &certReloader{certFile: certFile, keyFile: keyFile, interval: interval}
}

// start loads the initial certificate and polls for changes until ctx ends.
func (r *certReloader) start(ctx context.Context) error {
	if err := r.reload(); err != nil {
		return err
	}
	r.logCertificate()

	go r.loop(ctx)
	return nil
}

func (r *certReloader) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !r.changed() {
				continue
			}
			if err := r.reload(); err != nil {
				slog.Error("failed to reload certificate", "error", err, "cert_file", r.certFile)
				continue
			}
			slog.Info("certificate reloaded", "cert_file", r.certFile)
			r.logCertificate()
		case <-ctx.Done():
			return
		}
	}
}

func (r *certReloader) changed() bool {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return false
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return certInfo.ModTime().After(r.certTime) || keyInfo.ModTime().After(r.keyTime)
}

func (r *certReloader) reload() error {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return fmt.Errorf("certificate file: %w", err)
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return fmt.Errorf("key file: %w", err)
	}

	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}
	if time.Now().After(leaf.NotAfter) {
		return fmt.Errorf("certificate expired on %s", leaf.NotAfter.Format(time.RFC3339))
	}
	cert.Leaf = leaf

	r.mu.Lock()
	r.cert = &cert
	r.certTime = certInfo.ModTime()
	r.keyTime = keyInfo.ModTime()
	r.mu.Unlock()
	return nil
}

func (r *certReloader) current() *tls.Certificate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert
}

func (r *certReloader) getCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	if cert := r.current(); cert != nil {
		return cert, nil
	}
	return nil, fmt.Errorf("no certificate loaded")
}

func (r *certReloader) logCertificate() {
	cert := r.current()
	if cert == nil || cert.Leaf == nil {
		return
	}

	days := int(time.Until(cert.Leaf.NotAfter).Hours() / 24)
	attrs := []any{
		"subject", cert.Leaf.Subject.CommonName,
		"expires_in_days", days,
		"expires_at", cert.Leaf.NotAfter.Format(time.RFC3339),
	}
	if days < expiryWarningDays {
		slog.Warn("certificate expiring soon", attrs...)
		return
	}
	slog.Info("certificate loaded", attrs...)
}

// newTLSConfig builds the listener's TLS settings. The certificate comes
// from reloader so renewals apply to new handshakes.
func newTLSConfig(cfg *config.TLSConfig, reloader *certReloader) *tls.Config {
	// #nosec G402 - MinVersion is validated to 1.2 or 1.3
	return &tls.Config{
		MinVersion:     parseTLSVersion(cfg.MinVersion),
		GetCertificate: reloader.getCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
	}
}

func parseTLSVersion(v string) uint16 {
	if v == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}
