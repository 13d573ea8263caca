package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/relay/pkg/config"
)

// writeCert writes a self-signed certificate for commonName valid until
// notAfter and returns the cert and key paths.
func writeCert(t *testing.T, dir, commonName string, notAfter time.Time) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-48 * time.Hour),
		NotAfter:     notAfter,
		DNSNames:     []string{"localhost"},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestCertReloader_LoadsAndReloads(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir, "first", time.Now().Add(90*24*time.Hour))

	r := newCertReloader(certFile, keyFile, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.start(ctx); err != nil {
		t.Fatalf("start() error = %v", err)
	}
	cert, err := r.getCertificate(&tls.ClientHelloInfo{})
	if err != nil || cert.Leaf.Subject.CommonName != "first" {
		t.Fatalf("getCertificate() = %v, %v", cert, err)
	}
	if r.changed() {
		t.Error("unchanged files reported as changed")
	}

	writeCert(t, dir, "second", time.Now().Add(90*24*time.Hour))
	future := time.Now().Add(time.Minute)
	for _, f := range []string{certFile, keyFile} {
		if err := os.Chtimes(f, future, future); err != nil {
			t.Fatal(err)
		}
	}

	if !r.changed() {
		t.Fatal("rewritten files not detected")
	}
	if err := r.reload(); err != nil {
		t.Fatalf("reload() error = %v", err)
	}
	if cn := r.current().Leaf.Subject.CommonName; cn != "second" {
		t.Errorf("CommonName = %q, want second", cn)
	}
}

func TestCertReloader_Errors(t *testing.T) {
	dir := t.TempDir()

	if err := newCertReloader(filepath.Join(dir, "missing.pem"), filepath.Join(dir, "missing.key"), time.Hour).
		start(context.Background()); err == nil {
		t.Error("missing files should fail")
	}

	certFile, keyFile := writeCert(t, dir, "expired", time.Now().Add(-time.Hour))
	if err := newCertReloader(certFile, keyFile, time.Hour).start(context.Background()); err == nil {
		t.Error("expired certificate should fail")
	}

	empty := newCertReloader(certFile, keyFile, time.Hour)
	if _, err := empty.getCertificate(&tls.ClientHelloInfo{}); err == nil {
		t.Error("getCertificate before load should fail")
	}
}

func TestNewTLSConfig(t *testing.T) {
	tests := []struct {
		minVersion string
		want       uint16
	}{
		{"1.2", tls.VersionTLS12},
		{"1.3", tls.VersionTLS13},
		{"", tls.VersionTLS12},
	}
	for _, tt := range tests {
		cfg := newTLSConfig(&config.TLSConfig{MinVersion: tt.minVersion}, newCertReloader("", "", time.Hour))
		if cfg.MinVersion != tt.want {
			t.Errorf("MinVersion(%q) = %x, want %x", tt.minVersion, cfg.MinVersion, tt.want)
		}
		if cfg.GetCertificate == nil {
			t.Error("GetCertificate not set")
		}
	}
}
