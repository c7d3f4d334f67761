package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"topup-storefront/internal/core/ports"
)

// SignatureLabel prefixes every gateway signature value.
const SignatureLabel = "HMACSHA256="

// DokuSignatureCodec implements ports.SignatureCodec for DOKU's
// non-SNAP request signature scheme.
type DokuSignatureCodec struct{}

// NewDokuSignatureCodec creates a new signature codec.
func NewDokuSignatureCodec() *DokuSignatureCodec {
	return &DokuSignatureCodec{}
}

// Digest returns base64(SHA-256(body)).
func (s *DokuSignatureCodec) Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// CanonicalString builds the newline-joined component string that is signed.
// The Digest line is present only for a non-empty body.
func (s *DokuSignatureCodec) CanonicalString(c ports.SignatureComponents) string {
	var b strings.Builder
	b.WriteString("Client-Id:")
	b.WriteString(c.ClientID)
	b.WriteString("\nRequest-Id:")
	b.WriteString(c.RequestID)
	b.WriteString("\nRequest-Timestamp:")
	b.WriteString(c.Timestamp)
	b.WriteString("\nRequest-Target:")
	b.WriteString(c.RequestTarget)
	if len(c.Body) > 0 {
		b.WriteString("\nDigest:")
		b.WriteString(s.Digest(c.Body))
	}
	return b.String()
}

// Sign computes HMAC-SHA256 of the canonical string using secretKey.
// Returns the labeled form HMACSHA256=<base64>.
func (s *DokuSignatureCodec) Sign(c ports.SignatureComponents, secretKey string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(s.CanonicalString(c)))
	return SignatureLabel + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature and compares in constant time.
// Missing components or an unlabeled value verify as false.
func (s *DokuSignatureCodec) Verify(received string, c ports.SignatureComponents, secretKey string) bool {
	if c.Timestamp == "" || c.RequestID == "" || c.ClientID == "" || c.RequestTarget == "" {
		return false
	}
	if !strings.HasPrefix(received, SignatureLabel) {
		return false
	}
	expected := s.Sign(c, secretKey)
	return hmac.Equal([]byte(expected), []byte(received))
}
