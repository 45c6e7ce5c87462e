// Package extractor defines the fact-extraction boundary: given raw
// patient text and the current structured state, propose a sparse update.
// The engine treats every implementation as an opaque capability.
package extractor

import (
	"context"

	"github.com/mediflow/triage-engine/internal/model"
)

// Extractor proposes structured updates from free-form patient text.
// Implementations must honor ctx cancellation and deadlines; the caller
// degrades a timed-out extraction to "no updates".
type Extractor interface {
	// Extract returns a partial update for the record. A nil update with
	// a nil error means the text carried no extractable information.
	Extract(ctx context.Context, rawText string, current *model.ConversationRecord) (*model.ExtractedUpdate, error)

	// Name returns the provider name for logs and metrics.
	Name() string
}

// Provider selects an extractor implementation.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderKeyword   Provider = "keyword"
)
