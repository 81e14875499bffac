package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"modelgate/internal/storage"
)

// Source is the citation metadata forwarded to the client ahead of any
// content frames.
type Source struct {
	Title      string `json:"title"`
	Locator    string `json:"locator"`
	Excerpt    string `json:"excerpt"`
	Confidence string `json:"confidence"`
	Type       string `json:"type"`
}

type DocumentStore interface {
	TopDocuments(ctx context.Context, limit uint64) ([]storage.Document, error)
}

// Injector prepends retrieved document context to a user message.
// Augmentation is best-effort: retrieval failure degrades to the original
// message and never fails the chat request.
type Injector struct {
	store        DocumentStore
	maxDocuments int
	excerptChars int
	logger       zerolog.Logger
}

func NewInjector(store DocumentStore, maxDocuments, excerptChars int, logger zerolog.Logger) *Injector {
	if maxDocuments <= 0 {
		maxDocuments = 5
	}
	if excerptChars <= 0 {
		excerptChars = 600
	}
	return &Injector{
		store:        store,
		maxDocuments: maxDocuments,
		excerptChars: excerptChars,
		logger:       logger.With().Str("component", "knowledge").Logger(),
	}
}

func (i *Injector) Augment(ctx context.Context, message string, enabled bool) (string, []Source) {
	if !enabled {
		return message, nil
	}

	docs, err := i.store.TopDocuments(ctx, uint64(i.maxDocuments))
	if err != nil {
		i.logger.Warn().Err(err).Msg("document retrieval failed, proceeding without context")
		return message, nil
	}
	if len(docs) == 0 {
		return message, nil
	}

	sources := make([]Source, 0, len(docs))
	var block strings.Builder
	block.WriteString(message)
	block.WriteString("\n\nUse the following retrieved documents as context when answering:\n")
	for n, doc := range docs {
		excerpt := truncate(doc.Content, i.excerptChars)
		fmt.Fprintf(&block, "\n[Document %d: %s]\n%s\n", n+1, doc.Title, excerpt)

		confidence := "medium"
		if n < 2 {
			confidence = "high"
		}
		docType := doc.DocType
		if docType == "" {
			docType = "document"
		}
		sources = append(sources, Source{
			Title:      doc.Title,
			Locator:    doc.Locator,
			Excerpt:    truncate(doc.Content, 200),
			Confidence: confidence,
			Type:       docType,
		})
	}
	return block.String(), sources
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "…"
}
