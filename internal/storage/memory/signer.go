package memory

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const defaultURLTTL = 15 * time.Minute

// Signer returns direct object paths so development runs without a bucket.
type Signer struct {
	ttl time.Duration
}

// NewSigner creates the stub signer.
func NewSigner(ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = defaultURLTTL
	}
	return &Signer{ttl: ttl}
}

// SignedReadURL returns a stable pseudo URL plus its advertised expiry.
func (s *Signer) SignedReadURL(_ context.Context, objectPath string) (string, time.Time, error) {
	if strings.TrimSpace(objectPath) == "" {
		return "", time.Time{}, fmt.Errorf("object path is required")
	}
	return "/objects/" + strings.TrimPrefix(objectPath, "/"), time.Now().Add(s.ttl), nil
}
