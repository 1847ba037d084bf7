package recordings

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/streamcatch/streamcatch/internal/config"
	"github.com/streamcatch/streamcatch/internal/storage"
)

// coverURLExpiry is how long a signed poster URL stays valid.
const coverURLExpiry = time.Hour

// Signer hands out URLs for objects in the recordings bucket.
type Signer interface {
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	PublicURL(key string) string
}

// CoverResolver turns a recording's poster storage path into an image URL.
// Nothing is cached; every call signs again.
type CoverResolver struct {
	signer Signer
	mode   string
}

func NewCoverResolver(signer Signer, mode string) *CoverResolver {
	if mode == "" {
		mode = config.CoverModeSigned
	}
	return &CoverResolver{signer: signer, mode: mode}
}

// Resolve returns the poster URL, or "" when the placeholder should be shown.
// Absolute http(s) paths are returned verbatim without touching storage.
func (c *CoverResolver) Resolve(ctx context.Context, posterPath *string) string {
	if posterPath == nil || *posterPath == "" {
		return ""
	}
	path := *posterPath
	if strings.HasPrefix(path, "http") {
		return path
	}
	if c == nil || c.signer == nil {
		return ""
	}

	if c.mode == config.CoverModePublic {
		return c.signer.PublicURL(path)
	}

	u, err := c.signer.SignedURL(ctx, path, coverURLExpiry)
	if err != nil {
		if !errors.Is(err, storage.ErrObjectNotFound) {
			slog.Warn("recordings: failed to sign cover url", "path", path, "error", err)
		}
		return ""
	}
	return u
}
