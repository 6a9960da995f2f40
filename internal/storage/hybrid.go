package storage

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"
)

// HybridStorage implements the spec.md §4.11 contract: attempt primary,
// fall back to local on any primary error. Get and PresignedURL try the
// primary and then the local backend, because a Put may have landed on
// either one depending on which was healthy at the time; a caller cannot
// address one backend directly.
type HybridStorage struct {
	primary  Backend // nil when primary is disabled
	fallback Backend
	log      *slog.Logger
}

// New creates a HybridStorage. primary may be nil if StorageConfig disables
// it, in which case every Put goes straight to fallback.
func New(primary, fallback Backend, log *slog.Logger) *HybridStorage {
	if log == nil {
		log = slog.Default()
	}
	return &HybridStorage{primary: primary, fallback: fallback, log: log}
}

// Put writes body to the primary backend, falling back to the local backend
// on any primary error (connectivity, auth, bucket policy, etc.).
func (h *HybridStorage) Put(ctx context.Context, key string, body []byte, contentType string) (PutResult, error) {
	if h.primary != nil {
		err := h.primary.Put(ctx, key, bytes.NewReader(body), int64(len(body)), contentType)
		if err == nil {
			return PutResult{Backend: h.primary.Name(), Key: key}, nil
		}
		h.log.Warn("storage: primary put failed, falling back to local",
			"key", key, "error", err)
	}

	if err := h.fallback.Put(ctx, key, bytes.NewReader(body), int64(len(body)), contentType); err != nil {
		return PutResult{}, err
	}
	return PutResult{Backend: h.fallback.Name(), Key: key}, nil
}

// Get tries the primary backend first (if enabled), then the local
// fallback, since a prior Put may have landed on either one.
func (h *HybridStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if h.primary != nil {
		rc, err := h.primary.Get(ctx, key)
		if err == nil {
			return rc, nil
		}
		if err != ErrNotFound {
			h.log.Warn("storage: primary get failed, trying local", "key", key, "error", err)
		}
	}
	return h.fallback.Get(ctx, key)
}

// PresignedURL tries the primary backend first, then the local fallback.
func (h *HybridStorage) PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if h.primary != nil {
		url, err := h.primary.PresignedURL(ctx, key, expires)
		if err == nil {
			return url, nil
		}
		if err != ErrNotFound {
			h.log.Warn("storage: primary presign failed, trying local", "key", key, "error", err)
		}
	}
	return h.fallback.PresignedURL(ctx, key, expires)
}
