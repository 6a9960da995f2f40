package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/reportforge/reportengine/internal/models"
	"github.com/reportforge/reportengine/internal/storage"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// phaseStorageUpload implements Phase 7 (spec.md §4.8, 92-95%): compute a
// deterministic object key and hand the assembled bytes to HybridStorage,
// which performs its own primary-then-fallback failover. Both-fail is
// fatal.
func (p *Pipeline) phaseStorageUpload(ctx context.Context, r *run) *outcome {
	p.setStatus(ctx, r, models.StatusAssembling, 92, "uploading report")

	key := storage.BuildObjectKey(p.ObjectKeyTemplate, storage.ObjectKeyParams{
		Tenant: r.task.OwnerID,
		Slug:   slugify(r.task.Name),
		Date:   r.execution.StartedAt.UTC().Format("2006-01-02"),
		Name:   strings.TrimSuffix(r.friendlyName, ".docx"),
	})

	result, err := p.Storage.Put(ctx, key, r.assembledBytes, docxContentType)
	if err != nil {
		return p.fatal(ctx, r, "upload_failed", fmt.Errorf("pipeline: storage put: %w", err))
	}

	r.artifact = models.ReportArtifact{
		ID:           r.execution.ID, // 1:1 with the execution that produced it
		ExecutionID:  r.execution.ID,
		ObjectKey:    result.Key,
		Size:         int64(len(r.assembledBytes)),
		Backend:      result.Backend,
		FriendlyName: r.friendlyName,
		CreatedAt:    time.Now(),
	}

	p.emit(ctx, r, 95, "report uploaded", map[string]any{"backend": result.Backend, "object_key": result.Key})
	return nil
}

// slugify reduces name to a lowercase, hyphen-separated identifier safe for
// use in an object key path segment.
func slugify(name string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		case !prevDash:
			b.WriteRune('-')
			prevDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
