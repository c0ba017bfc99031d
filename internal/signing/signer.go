// Package signing issues and verifies expiring download links for media.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrLinkExpired      = errors.New("link has expired")
)

// Link is a signed, expiring reference to a media file or conversion.
type Link struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewSigner(key string, ttl time.Duration) *Signer {
	return &Signer{key: []byte(key), ttl: ttl, now: time.Now}
}

// Link signs the download of a media item's original file or, with a
// non-empty conversion, of that conversion.
func (s *Signer) Link(mediaID int64, conversion string) Link {
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	expires := expiresAt.Unix()

	q := url.Values{}
	if conversion != "" {
		q.Set("conversion", conversion)
	}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", s.signature(mediaID, conversion, expires))

	return Link{
		URL:       fmt.Sprintf("/v1/media/%d/download?%s", mediaID, q.Encode()),
		ExpiresAt: expiresAt.UTC(),
	}
}

// Verify checks a link's signature and expiry.
func (s *Signer) Verify(mediaID int64, conversion string, expires int64, signature string) error {
	expected := s.signature(mediaID, conversion, expires)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}
	if s.now().Unix() > expires {
		return ErrLinkExpired
	}
	return nil
}

func (s *Signer) signature(mediaID int64, conversion string, expires int64) string {
	h := hmac.New(sha256.New, s.key)
	fmt.Fprintf(h, "%d\n%s\n%d", mediaID, conversion, expires)
	return hex.EncodeToString(h.Sum(nil))
}
