// Package sign implements the two signing schemes the bridge speaks:
// draft-cavage HTTP Signatures for ActivityPub deliveries and Salmon Magic
// Signature envelopes for OStatus deliveries. Both are pure given a keypair.
package sign

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/heartmarshall/fedbridge/internal/domain"
)

// ActorKeyID is the signature key id for a bridged domain, in the form
// Mastodon's signature verification resolves via Webfinger.
func ActorKeyID(domain string) string {
	return "acct:me@" + domain
}

// SignRequest attaches an HTTP Signature to an outbound request. It
// synthesizes a Date header and signs it with RSA-SHA256; the resulting
// Authorization header carries the key id and the covered header list.
func SignRequest(req *http.Request, key *domain.MagicKey, keyID string) error {
	return signRequestAt(req, key, keyID, time.Now())
}

// signRequestAt is SignRequest with an injectable clock for tests.
func signRequestAt(req *http.Request, key *domain.MagicKey, keyID string, now time.Time) error {
	priv, err := key.PrivateKey()
	if err != nil {
		return err
	}

	date := now.UTC().Format(http.TimeFormat)
	req.Header.Set("Date", date)

	signingString := "date: " + date
	digest := sha256.Sum256([]byte(signingString))
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		return fmt.Errorf("sign request for %s: %w: %v", keyID, domain.ErrSigning, err)
	}

	req.Header.Set("Authorization", fmt.Sprintf(
		`Signature keyId=%q,algorithm="rsa-sha256",headers="date",signature=%q`,
		keyID, base64.StdEncoding.EncodeToString(sig)))
	return nil
}

// VerifySigningString checks an RSA-SHA256 signature over a signing string.
// Used by tests and by peers validating our deliveries.
func VerifySigningString(pub *rsa.PublicKey, signingString string, sig []byte) error {
	digest := sha256.Sum256([]byte(signingString))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("verify signature: %w", domain.ErrSigning)
	}
	return nil
}
