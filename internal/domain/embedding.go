package domain

import "context"

// Embedder vectorizes batches of text. Output is same-length and
// order-preserving relative to the input; any internal reordering for
// throughput is the provider's own business.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// DomainValidation is the oracle's verdict on a raw category label.
type DomainValidation struct {
	Valid         bool
	CanonicalName string
}

// Oracle is the text-classification fallback used when no matching
// strategy recognizes a category label.
type Oracle interface {
	ValidateDomain(ctx context.Context, rawLabel string) (DomainValidation, error)
}
