// Package storage implements HybridStorage (spec.md §4.11): an S3-compatible
// primary backend with automatic failover to a local filesystem fallback,
// deterministic object keys, and presigned-URL retrieval.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// ErrNotFound is returned by Get/PresignedURL when neither backend has the
// object.
var ErrNotFound = errors.New("storage: object not found")

// PutResult reports which backend actually stored the object.
type PutResult struct {
	Backend string // the storing backend's Name(): "primary" or "fallback"
	Key     string
}

// Backend is a single storage implementation. HybridStorage composes two of
// them with automatic failover.
type Backend interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
	Name() string
}

// ObjectKeyParams are the fields substituted into
// StorageConfig.ObjectKeyTemplate to build a deterministic object key, named
// after spec.md §6's default template `reports/{tenant}/{slug}/{date}-{name}.docx`.
type ObjectKeyParams struct {
	Tenant string // Task.OwnerID
	Slug   string // slugified Task.Name
	Date   string // yyyy-mm-dd, the execution's start date
	Name   string // DocumentAssembler's friendly_name, extension stripped
}

const defaultObjectKeyTemplate = "reports/{tenant}/{slug}/{date}-{name}.docx"

// BuildObjectKey substitutes ObjectKeyParams into template, defaulting to
// defaultObjectKeyTemplate when template is empty. Deterministic: identical
// params always yield the identical key.
func BuildObjectKey(template string, p ObjectKeyParams) string {
	if template == "" {
		template = defaultObjectKeyTemplate
	}
	replacer := strings.NewReplacer(
		"{tenant}", p.Tenant,
		"{slug}", p.Slug,
		"{date}", p.Date,
		"{name}", p.Name,
	)
	return replacer.Replace(template)
}
