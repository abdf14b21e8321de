// Copyright 2021, Square, Inc.

package util_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io/ioutil"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-test/deep"

	"github.com/square/orkestra/util"
)

func TestCoalesce(t *testing.T) {
	maps := []map[string]interface{}{
		{
			"object":  "banner",
			"country": "usa",
			"weather": "rainy",
		},
		{
			"person":  "sam",
			"animal":  nil,
			"country": "brazil",
		},
		{
			"weather": "cloudy",
		},
	}
	override := map[string]interface{}{
		"day":     "monday",
		"none":    nil,
		"weather": "windy",
	}

	got := util.Coalesce(append(maps, override)...)
	expect := map[string]interface{}{
		"object":  "banner",
		"person":  "sam",
		"day":     "monday",
		"country": "brazil",
		"weather": "windy",
	}
	if diff := deep.Equal(got, expect); diff != nil {
		t.Error(diff)
	}

	// Inputs are not modified.
	if maps[1]["country"] != "brazil" || len(maps[1]) != 3 {
		t.Errorf("input map modified: %v", maps[1])
	}
	if maps[0]["weather"] != "rainy" {
		t.Errorf("input map modified: %v", maps[0])
	}
}

func TestCoalesceNilNeverOverwrites(t *testing.T) {
	got := util.Coalesce(
		map[string]interface{}{"w": "rainy"},
		map[string]interface{}{"w": nil, "x": "brazil"},
		map[string]interface{}{"w": "windy"},
	)
	expect := map[string]interface{}{"w": "windy", "x": "brazil"}
	if diff := deep.Equal(got, expect); diff != nil {
		t.Error(diff)
	}

	got = util.Coalesce(
		map[string]interface{}{"w": "rainy"},
		map[string]interface{}{"w": nil},
	)
	if got["w"] != "rainy" {
		t.Errorf("w = %v, expected rainy", got["w"])
	}
}

func TestCoalesceEmpty(t *testing.T) {
	got := util.Coalesce()
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, expected empty non-nil map", got)
	}
}

// writeCert writes a self-signed CA certificate and its key to dir.
func writeCert(t *testing.T, dir string) (certFile, keyFile string) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "orkestra test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDer, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	if err := ioutil.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDer}), 0600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestNewTLSConfig(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir)

	cfg, err := util.NewTLSConfig(certFile, certFile, keyFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("%d certificates, expected 1", len(cfg.Certificates))
	}
	if cfg.ClientCAs == nil || cfg.RootCAs == nil {
		t.Error("CA pool not set")
	}
	if cfg.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Errorf("ClientAuth = %v, expected RequireAndVerifyClientCert", cfg.ClientAuth)
	}
}

func TestNewTLSConfigErrors(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir)

	if _, err := util.NewTLSConfig(certFile, certFile, filepath.Join(dir, "nope.pem")); err == nil {
		t.Error("missing key file: no error, expected one")
	}
	if _, err := util.NewTLSConfig(filepath.Join(dir, "nope.pem"), certFile, keyFile); err == nil {
		t.Error("missing CA file: no error, expected one")
	}
	// A key is not a certificate.
	if _, err := util.NewTLSConfig(keyFile, certFile, keyFile); err == nil {
		t.Error("CA file without certificates: no error, expected one")
	}
}
