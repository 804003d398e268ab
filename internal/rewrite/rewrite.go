// Package rewrite expands a question into multiple query variants to
// improve retrieval recall.
package rewrite

import (
	"context"
	"fmt"
	"strings"

	"github.com/docuchat/rag-server/internal/llm"
	"github.com/docuchat/rag-server/internal/pkg/logger"
)

// DefaultNumQueries is the number of variants requested from the model,
// not counting the original question.
const DefaultNumQueries = 5

const rewriteSystemPrompt = `You are a query expansion assistant for a document retrieval system.
Given a user question, produce %d alternative phrasings that preserve the
original intent but vary the vocabulary and structure. Each variant should
be a standalone search query.

Return one variant per line with no numbering and no extra commentary.`

// Rewriter generates query variants via the language model.
type Rewriter struct {
	llm   llm.Client
	model string
	log   *logger.Logger
}

// New creates a Rewriter.
func New(client llm.Client, model string, log *logger.Logger) *Rewriter {
	return &Rewriter{
		llm:   client,
		model: model,
		log:   log,
	}
}

// Rewrite returns the original question followed by up to numQueries
// generated variants, deduplicated case-insensitively. Rewriting never
// fails the request: when the model is unavailable or returns nothing
// usable, the original question alone is returned.
func (r *Rewriter) Rewrite(ctx context.Context, question string, numQueries int) []string {
	if numQueries <= 0 {
		numQueries = DefaultNumQueries
	}

	question = strings.TrimSpace(question)
	queries := []string{question}

	if r.llm == nil {
		return queries
	}

	reply, err := r.llm.Complete(ctx, llm.CompletionRequest{
		Model: r.model,
		Messages: []llm.Message{
			{Role: "system", Content: fmt.Sprintf(rewriteSystemPrompt, numQueries)},
			{Role: "user", Content: question},
		},
		Temperature: 0.7,
	})
	if err != nil {
		r.log.Warn("query rewrite failed, using original question only", "error", err)
		return queries
	}

	seen := map[string]bool{normalize(question): true}
	for _, line := range strings.Split(reply, "\n") {
		variant := cleanVariant(line)
		if variant == "" {
			continue
		}

		key := normalize(variant)
		if seen[key] {
			continue
		}
		seen[key] = true

		queries = append(queries, variant)
		if len(queries) > numQueries {
			break
		}
	}

	return queries
}

// cleanVariant strips list markers the model sometimes adds despite
// instructions.
func cleanVariant(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "0123456789")
	s = strings.TrimLeft(s, ".)-* ")
	s = strings.Trim(s, `"`)
	return strings.TrimSpace(s)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
