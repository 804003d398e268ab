// Package generate produces grounded answers from retrieved context.
package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/docuchat/rag-server/internal/llm"
	"github.com/docuchat/rag-server/internal/pkg/errors"
	"github.com/docuchat/rag-server/internal/pkg/logger"
	"github.com/docuchat/rag-server/internal/retrieval"
)

const generatorSystemPrompt = `You are a precise question answering assistant.
Answer the user question using only the numbered context passages below.
Cite passages inline using their markers, e.g. [1] or [2].
If the context does not contain the answer, say so instead of guessing.

Context:
%s`

const directSystemPrompt = `You are a helpful assistant. Answer the user
question directly and concisely.`

// Source is a context passage that backed the answer.
type Source struct {
	// Marker is the citation tag used in the answer, e.g. "[1]".
	Marker string `json:"marker"`

	DocID   string  `json:"doc_id"`
	Source  string  `json:"source"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Answer is the generation output.
type Answer struct {
	// Text is the generated answer with inline [n] markers.
	Text string `json:"text"`

	// Sources are the passages offered to the model, in marker order.
	Sources []Source `json:"sources"`
}

// Generator produces answers from context passages.
type Generator struct {
	llm         llm.Client
	model       string
	temperature float64
	log         *logger.Logger
}

// New creates a Generator.
func New(client llm.Client, model string, temperature float64, log *logger.Logger) *Generator {
	return &Generator{
		llm:         client,
		model:       model,
		temperature: temperature,
		log:         log,
	}
}

// Generate answers the question grounded in the given candidates. Each
// candidate becomes a numbered passage [1]..[n] in both the prompt and
// the returned sources.
func (g *Generator) Generate(ctx context.Context, question string, candidates []retrieval.Candidate) (*Answer, error) {
	if len(candidates) == 0 {
		return g.Direct(ctx, question)
	}

	var sb strings.Builder
	sources := make([]Source, 0, len(candidates))
	for i, c := range candidates {
		marker := fmt.Sprintf("[%d]", i+1)
		fmt.Fprintf(&sb, "%s %s\n\n", marker, c.Content)
		sources = append(sources, Source{
			Marker:  marker,
			DocID:   c.DocID,
			Source:  c.Source,
			Content: c.Content,
			Score:   c.Score,
		})
	}

	text, err := g.llm.Complete(ctx, llm.CompletionRequest{
		Model: g.model,
		Messages: []llm.Message{
			{Role: "system", Content: fmt.Sprintf(generatorSystemPrompt, sb.String())},
			{Role: "user", Content: question},
		},
		Temperature: g.temperature,
	})
	if err != nil {
		return nil, errors.Wrap(errors.CodeGenerationError, "answer generation failed", err)
	}

	return &Answer{
		Text:    strings.TrimSpace(text),
		Sources: sources,
	}, nil
}

// Direct answers the question without retrieval context. Used for
// questions routed away from the vectorstore.
func (g *Generator) Direct(ctx context.Context, question string) (*Answer, error) {
	text, err := g.llm.Complete(ctx, llm.CompletionRequest{
		Model: g.model,
		Messages: []llm.Message{
			{Role: "system", Content: directSystemPrompt},
			{Role: "user", Content: question},
		},
		Temperature: g.temperature,
	})
	if err != nil {
		return nil, errors.Wrap(errors.CodeGenerationError, "direct answer generation failed", err)
	}

	return &Answer{Text: strings.TrimSpace(text)}, nil
}
