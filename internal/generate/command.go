package generate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// CommandGenerator shells out to a configured provider process. The system
// prompt, user prompt, and context are written to stdin separated by blank
// lines; stdout is the generated text.
type CommandGenerator struct {
	Spec    ProviderSpec
	Timeout time.Duration
}

// NewCommandGenerator wraps a provider spec. A zero timeout defaults to two
// minutes.
func NewCommandGenerator(spec ProviderSpec, timeout time.Duration) *CommandGenerator {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &CommandGenerator{Spec: spec, Timeout: timeout}
}

// Generate runs the provider command once. Deadline overruns surface as
// ErrGenerationTimeout, everything else as ErrGeneration.
func (g *CommandGenerator) Generate(ctx context.Context, systemPrompt, userPrompt, extra string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.Spec.Command, g.Spec.Args...)
	cmd.Env = os.Environ()
	for k, v := range g.Spec.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	var in bytes.Buffer
	fmt.Fprintf(&in, "%s\n\n%s\n\n%s\n", systemPrompt, userPrompt, extra)
	cmd.Stdin = &in

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", wrapTimeout(g.Spec.Name)
		}
		return "", wrapFailure(g.Spec.Name, stderr.String(), err)
	}
	return out.String(), nil
}
