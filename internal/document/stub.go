package document

import (
	"bytes"
	"context"
	"fmt"
	"sort"
)

// StubAssembler is a minimal Assembler for tests and for running the
// pipeline without a real Word renderer: it renders the render map as
// plain text, good enough to exercise every other component end-to-end.
type StubAssembler struct {
	// TemplateBytes, when set, is returned verbatim for templates with an
	// empty render map, matching spec.md §8's "Template with 0 placeholders"
	// boundary behavior.
	TemplateBytes []byte
}

// Assemble renders renderMap into a deterministic plain-text body.
func (s *StubAssembler) Assemble(_ context.Context, templateRef string, renderMap map[string]any, _ Options) (Result, error) {
	if len(renderMap) == 0 && s.TemplateBytes != nil {
		return Result{Bytes: s.TemplateBytes, FriendlyName: friendlyName(templateRef)}, nil
	}

	keys := make([]string, 0, len(renderMap))
	for k := range renderMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Report rendered from template %s\n\n", templateRef)
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s: %v\n", k, renderMap[k])
	}

	return Result{Bytes: buf.Bytes(), FriendlyName: friendlyName(templateRef)}, nil
}

func friendlyName(templateRef string) string {
	return templateRef + ".docx"
}
