package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const defaultTokenTTL = 24 * time.Hour

// SignedURLSigner mints and validates the download tokens handed out for
// audit-trail exports. A token binds an export ID to the artifact path and
// an expiry, HMAC-signed so neither can be swapped.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl}
}

// Token layout: exportID.expiryUnix.base64(path).hexMAC where the MAC
// covers "exportID|expiryUnix|base64(path)".
func (s *SignedURLSigner) sign(exportID, ts, encodedPath string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%s|%s", exportID, ts, encodedPath)
	return mac.Sum(nil)
}

// Generate returns a signed token referencing the export and its artifact.
func (s *SignedURLSigner) Generate(exportID, relPath string) (string, time.Time, error) {
	if exportID == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("exportID and relPath required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}

	expiresAt := time.Now().Add(s.ttl)
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	signature := hex.EncodeToString(s.sign(exportID, ts, encodedPath))

	return strings.Join([]string{exportID, ts, encodedPath, signature}, "."), expiresAt, nil
}

// Parse validates a token and returns the embedded metadata. When
// allowExpired is true the timestamp check is skipped; cleanup routines use
// that to resolve paths of links that already lapsed.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (exportID, relPath string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", time.Time{}, fmt.Errorf("invalid token format")
	}
	exportID, ts, encodedPath := parts[0], parts[1], parts[2]

	signature, err := hex.DecodeString(parts[3])
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("invalid token signature")
	}
	if !hmac.Equal(s.sign(exportID, ts, encodedPath), signature) {
		return "", "", time.Time{}, fmt.Errorf("invalid token signature")
	}

	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("invalid timestamp")
	}
	expiresAt = time.Unix(expUnix, 0)
	if !allowExpired && time.Now().After(expiresAt) {
		return "", "", time.Time{}, fmt.Errorf("token expired")
	}

	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("decode path: %w", err)
	}

	return exportID, string(rawPath), expiresAt, nil
}
