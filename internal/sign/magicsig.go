package sign

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/heartmarshall/fedbridge/internal/domain"
)

// Magic envelope constants.
const (
	MagicEnvelopeNS          = "http://salmon-protocol.org/ns/magic-env"
	MagicEnvelopeContentType = "application/magic-envelope+xml"
	magicEncoding            = "base64url"
	magicAlg                 = "RSA-SHA256"

	xmlHeader = `<?xml version='1.0' encoding='UTF-8'?>` + "\n"
)

// envelope is the me:env XML document.
type envelope struct {
	XMLName  xml.Name     `xml:"me:env"`
	NS       string       `xml:"xmlns:me,attr"`
	Data     envelopeData `xml:"me:data"`
	Encoding string       `xml:"me:encoding"`
	Alg      string       `xml:"me:alg"`
	Sig      string       `xml:"me:sig"`
}

type envelopeData struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// MagicEnvelope signs a payload into a Salmon magic envelope. dataType is
// the payload's media type (an Atom entry for this bridge). The signing
// string is the dot-joined base64url encoding of payload, type, encoding,
// and algorithm, per the Magic Signatures spec.
func MagicEnvelope(payload []byte, dataType string, key *domain.MagicKey) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("magic envelope: empty payload: %w", domain.ErrSigning)
	}
	priv, err := key.PrivateKey()
	if err != nil {
		return nil, err
	}

	b64 := base64.URLEncoding
	data := b64.EncodeToString(payload)
	signingString := strings.Join([]string{
		data,
		b64.EncodeToString([]byte(dataType)),
		b64.EncodeToString([]byte(magicEncoding)),
		b64.EncodeToString([]byte(magicAlg)),
	}, ".")

	digest := sha256.Sum256([]byte(signingString))
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("magic envelope for %s: %w: %v", key.Domain, domain.ErrSigning, err)
	}

	env := envelope{
		NS:       MagicEnvelopeNS,
		Data:     envelopeData{Type: dataType, Value: data},
		Encoding: magicEncoding,
		Alg:      magicAlg,
		Sig:      b64.EncodeToString(sig),
	}
	out, err := xml.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("magic envelope for %s: marshal: %w", key.Domain, err)
	}
	return append([]byte(xmlHeader), out...), nil
}

// parsedEnvelope mirrors envelope for decoding; encoding/xml cannot reuse
// the prefixed field tags for unmarshalling.
type parsedEnvelope struct {
	Data struct {
		Type  string `xml:"type,attr"`
		Value string `xml:",chardata"`
	} `xml:"data"`
	Encoding string `xml:"encoding"`
	Alg      string `xml:"alg"`
	Sig      string `xml:"sig"`
}

// OpenMagicEnvelope verifies an envelope's signature against a public key
// and returns the decoded payload.
func OpenMagicEnvelope(envXML []byte, pub *rsa.PublicKey) ([]byte, error) {
	var env parsedEnvelope
	if err := xml.Unmarshal(envXML, &env); err != nil {
		return nil, fmt.Errorf("open magic envelope: %w: %v", domain.ErrSigning, err)
	}

	b64 := base64.URLEncoding
	data := strings.TrimSpace(env.Data.Value)
	signingString := strings.Join([]string{
		data,
		b64.EncodeToString([]byte(env.Data.Type)),
		b64.EncodeToString([]byte(env.Encoding)),
		b64.EncodeToString([]byte(env.Alg)),
	}, ".")

	sig, err := b64.DecodeString(strings.TrimSpace(env.Sig))
	if err != nil {
		return nil, fmt.Errorf("open magic envelope: decode sig: %w", domain.ErrSigning)
	}
	if err := VerifySigningString(pub, signingString, sig); err != nil {
		return nil, err
	}

	payload, err := b64.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("open magic envelope: decode payload: %w", domain.ErrSigning)
	}
	return payload, nil
}
