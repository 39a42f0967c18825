package generate

import (
	"fmt"

	"github.com/crewforge/engine/internal/domain"
)

func wrapTimeout(provider string) error {
	return domain.WrapEngineError(domain.ErrGenerationTimeout.Code, provider, nil)
}

func wrapFailure(provider, stderr string, cause error) error {
	msg := provider
	if stderr != "" {
		msg = fmt.Sprintf("%s: %s", provider, stderr)
	}
	return domain.WrapEngineError(domain.ErrGeneration.Code, msg, cause)
}
