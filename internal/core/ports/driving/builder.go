package driving

import (
	"context"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
)

// IndexBuilder runs the offline persistent index build.
type IndexBuilder interface {
	// Build embeds every chunk and writes the artifact set.
	Build(ctx context.Context, req domain.BuildRequest, progress domain.BuildProgress) (*domain.BuildSummary, error)
}
