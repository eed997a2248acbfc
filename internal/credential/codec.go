// Package credential builds and verifies the signed tokens embedded in
// student QR codes. A token is two padding-stripped base64url halves joined
// by a dot: the canonical JSON payload and an HMAC-SHA256 over its exact
// bytes. Tokens carry no expiry; printed codes stay valid until the signing
// secret is rotated.
package credential

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrMalformedToken means the token is not two decodable base64url halves.
	ErrMalformedToken = errors.New("malformed token")
	// ErrInvalidSignature means the MAC does not match the payload bytes.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrInvalidPayload means the payload decoded but lacks required fields.
	ErrInvalidPayload = errors.New("invalid token payload")
)

// Credential is the verified content of a token. It is never persisted;
// every verification rebuilds it from the token bytes.
type Credential struct {
	StudentID string
	Nonce     string
	IssuedAt  time.Time
}

// Codec signs and verifies tokens with a single process-wide secret. The
// secret is injected at construction so tests can run with their own.
type Codec struct {
	secret []byte
}

// NewCodec builds a codec around the given signing secret.
func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// payload is the wire form of a credential. Field order matches the sorted
// key order (iat, nonce, sid) so encoding/json emits the canonical byte
// sequence the signature covers.
type payload struct {
	IssuedAt  int64  `json:"iat"`
	Nonce     string `json:"nonce"`
	StudentID string `json:"sid"`
}

// Issue signs a fresh credential for the student and returns the token plus
// the nonce, which the caller stores alongside the student record.
func (c *Codec) Issue(studentID string) (token, nonce string, err error) {
	nonce = strings.ReplaceAll(uuid.NewString(), "-", "")

	body, err := json.Marshal(payload{
		IssuedAt:  time.Now().Unix(),
		Nonce:     nonce,
		StudentID: studentID,
	})
	if err != nil {
		return "", "", err
	}

	token = encode(body) + "." + encode(c.sign(body))
	return token, nonce, nil
}

// Verify authenticates a token and returns the credential it carries.
// Signature comparison is constant-time; verification is a pure function of
// the token and the current secret.
func (c *Codec) Verify(token string) (Credential, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return Credential{}, ErrMalformedToken
	}

	body, err := decode(parts[0])
	if err != nil {
		return Credential{}, ErrMalformedToken
	}
	mac, err := decode(parts[1])
	if err != nil {
		return Credential{}, ErrMalformedToken
	}

	if !hmac.Equal(mac, c.sign(body)) {
		return Credential{}, ErrInvalidSignature
	}

	var raw struct {
		IssuedAt  *int64  `json:"iat"`
		Nonce     *string `json:"nonce"`
		StudentID *string `json:"sid"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Credential{}, ErrInvalidPayload
	}
	if raw.StudentID == nil || raw.Nonce == nil || raw.IssuedAt == nil {
		return Credential{}, ErrInvalidPayload
	}

	return Credential{
		StudentID: *raw.StudentID,
		Nonce:     *raw.Nonce,
		IssuedAt:  time.Unix(*raw.IssuedAt, 0),
	}, nil
}

func (c *Codec) sign(body []byte) []byte {
	h := hmac.New(sha256.New, c.secret)
	h.Write(body)
	return h.Sum(nil)
}

func encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// decode accepts both padded and padding-stripped base64url input.
func decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
