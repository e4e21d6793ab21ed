package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocumentType classifies a source legal text.
type DocumentType string

const (
	TypeCode     DocumentType = "code"
	TypeLaw      DocumentType = "law"
	TypeDecree   DocumentType = "decree"
	TypeCircular DocumentType = "circular"
)

// DocumentStatus is the legal status of a document.
type DocumentStatus string

const (
	StatusActive   DocumentStatus = "active"
	StatusAmended  DocumentStatus = "amended"
	StatusRepealed DocumentStatus = "repealed"
)

// Document is a source legal text. Identity for upsert purposes is
// (Number, Type), falling back to Title when the number is unknown, so
// a re-crawled document is updated in place rather than duplicated.
// CategoryID stays empty until resolution succeeds.
type Document struct {
	ID               string
	Type             DocumentType
	Number           string
	Title            string
	EffectiveDate    string
	IssuingAuthority string
	Status           DocumentStatus
	SourceURL        string
	Fingerprint      string
	CategoryID       string
}

// Article is the smallest retrievable content unit: one legal article,
// or one bounded-size chunk of a long article. (DocumentID,
// ArticleNumber, ChunkIndex) is unique; chunk 0 always exists.
type Article struct {
	ID            string
	DocumentID    string
	ArticleNumber int
	Title         string
	Content       string
	Chapter       string
	ChunkIndex    int
	Embedding     []float32
}

// RegistryEntry is a known document URL tracked for a category,
// carrying the fingerprint seen on the last crawl.
type RegistryEntry struct {
	ID              string
	CategoryID      string
	CategoryName    string
	URL             string
	Title           string
	Role            string // "primary" or "related"
	Priority        int
	LastContentHash string
	CheckedAt       time.Time
}

// ArticleID derives the deterministic identifier for an article's
// first chunk from its document and article number.
func ArticleID(documentID string, articleNumber int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL,
		[]byte(fmt.Sprintf("%s_dieu_%d", documentID, articleNumber))).String()
}

// ChunkID derives the identifier for chunk chunkIndex of the article
// whose first chunk has baseID. Index 0 keeps the base identifier so
// unsplit articles and first chunks share one ID scheme.
func ChunkID(baseID string, chunkIndex int) string {
	if chunkIndex == 0 {
		return baseID
	}
	return uuid.NewSHA1(uuid.NameSpaceURL,
		[]byte(fmt.Sprintf("%s_chunk_%d", baseID, chunkIndex))).String()
}
