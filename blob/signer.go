package blob

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// PathPrefix is the HTTP path signed URLs are served under.
const PathPrefix = "/blobs/"

// Signer issues and checks keyed BLAKE2b signatures over blob addresses.
type Signer struct {
	key []byte
	now func() time.Time
}

// NewSigner creates a signer keyed with secret.
func NewSigner(secret string) (*Signer, error) {
	if len(secret) < 16 {
		return nil, ErrSecretRequired
	}
	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	return &Signer{key: key, now: time.Now}, nil
}

// Sign returns the hex signature of collectionID/filename valid until expires.
func (s *Signer) Sign(collectionID, filename string, expires int64) string {
	h, _ := blake2b.New256(s.key)
	h.Write([]byte(collectionID))
	h.Write([]byte{0})
	h.Write([]byte(filename))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// URL returns the signed relative read URL for a blob.
func (s *Signer) URL(collectionID, filename string, ttl time.Duration) string {
	expires := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.Sign(collectionID, filename, expires))
	return PathPrefix + url.PathEscape(collectionID) + "/" + url.PathEscape(filename) + "?" + q.Encode()
}

// Verify checks the expires and sig query values of a signed URL.
func (s *Signer) Verify(collectionID, filename, expires, sig string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad expiry", ErrSignatureInvalid)
	}
	want := s.Sign(collectionID, filename, exp)
	if subtle.ConstantTimeCompare([]byte(want), []byte(sig)) != 1 {
		return ErrSignatureInvalid
	}
	if s.now().Unix() > exp {
		return ErrSignatureExpired
	}
	return nil
}
