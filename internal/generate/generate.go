// Package generate defines the content-generation boundary. Generation is an
// opaque external call; the engine never retries here. Retries belong to the
// orchestrator at the task level.
package generate

import (
	"context"
	"fmt"
	"strings"
)

// Generator produces text from a prompt pair plus free-form context.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt, extra string) (string, error)
}

// StaticGenerator renders deterministic placeholder content. Used in tests
// and offline runs where no provider is configured.
type StaticGenerator struct {
	// Prefix leads every generated document.
	Prefix string
}

// Generate returns a deterministic document derived from the prompts.
func (g *StaticGenerator) Generate(_ context.Context, systemPrompt, userPrompt, extra string) (string, error) {
	var b strings.Builder
	if g.Prefix != "" {
		fmt.Fprintln(&b, g.Prefix)
	}
	fmt.Fprintf(&b, "# %s\n\n", firstLine(systemPrompt))
	fmt.Fprintln(&b, userPrompt)
	if extra != "" {
		fmt.Fprintf(&b, "\n## Context\n%s\n", extra)
	}
	return b.String(), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
