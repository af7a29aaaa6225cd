package domain

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"
)

// MagicKeyBits is the RSA key size for generated per-domain keypairs.
const MagicKeyBits = 2048

// MagicKey is a per-domain RSA keypair. It backs both signing schemes:
// HTTP Signatures on ActivityPub deliveries and Magic Signatures on Salmon
// slaps. One keypair per domain, created lazily on first need and stable
// forever after.
type MagicKey struct {
	Domain     string
	PublicPEM  string
	PrivatePEM string
	CreatedAt  time.Time
}

// GenerateMagicKey creates a fresh RSA keypair for a domain.
func GenerateMagicKey(domain string) (*MagicKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, MagicKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate keypair for %s: %w", domain, err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encode public key for %s: %w", domain, err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDER,
	})

	return &MagicKey{
		Domain:     domain,
		PublicPEM:  string(pubPEM),
		PrivatePEM: string(privPEM),
	}, nil
}

// PrivateKey parses the stored private PEM. Accepts PKCS#1 and PKCS#8.
func (k *MagicKey) PrivateKey() (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(k.PrivatePEM))
	if block == nil {
		return nil, fmt.Errorf("key for %s: no PEM block: %w", k.Domain, ErrSigning)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("key for %s: parse private key: %w", k.Domain, ErrSigning)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key for %s: not an RSA key: %w", k.Domain, ErrSigning)
	}
	return key, nil
}

// PublicKey parses the stored public PEM.
func (k *MagicKey) PublicKey() (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(k.PublicPEM))
	if block == nil {
		return nil, fmt.Errorf("key for %s: no PEM block: %w", k.Domain, ErrSigning)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("key for %s: parse public key: %w", k.Domain, ErrSigning)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key for %s: not an RSA key: %w", k.Domain, ErrSigning)
	}
	return key, nil
}
