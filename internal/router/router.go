// Package router decides whether a question needs document retrieval
// or can be answered directly by the language model.
package router

import (
	"context"
	"strings"

	"github.com/docuchat/rag-server/internal/llm"
	"github.com/docuchat/rag-server/internal/pkg/errors"
	"github.com/docuchat/rag-server/internal/pkg/logger"
)

// Decision is a routing outcome.
type Decision string

const (
	// DecisionVectorstore routes through document retrieval.
	DecisionVectorstore Decision = "vectorstore"

	// DecisionLLM answers directly without retrieval.
	DecisionLLM Decision = "llm"
)

const routerSystemPrompt = `You are a query router for a document question answering system.
Classify the user question into exactly one of two categories:
- "vectorstore": the question asks about facts, documents, policies, or any domain content
- "llm": the question is small talk, a greeting, or about you as an assistant

Respond with only the single word: vectorstore or llm.`

// smallTalk holds phrases that never need retrieval.
var smallTalk = []string{
	"hello", "hi ", "hey", "good morning", "good afternoon", "good evening",
	"how are you", "who are you", "what are you", "what can you do",
	"thank you", "thanks", "bye", "goodbye",
}

// Router classifies questions before the pipeline runs.
type Router struct {
	llm   llm.Client
	model string
	log   *logger.Logger
}

// New creates a Router. A nil client disables LLM classification and
// only the keyword policy applies.
func New(client llm.Client, model string, log *logger.Logger) *Router {
	return &Router{
		llm:   client,
		model: model,
		log:   log,
	}
}

// Route classifies a question. The keyword policy runs first; when it
// is inconclusive and an LLM client is configured, the model decides.
// Classification failures fall back to retrieval, never to an error:
// sending a question through the vectorstore is always safe.
func (r *Router) Route(ctx context.Context, question string) (Decision, error) {
	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return "", errors.New(errors.CodeValidation, "question must not be empty")
	}

	if isSmallTalk(trimmed) {
		return DecisionLLM, nil
	}

	if r.llm == nil {
		return DecisionVectorstore, nil
	}

	reply, err := r.llm.Complete(ctx, llm.CompletionRequest{
		Model: r.model,
		Messages: []llm.Message{
			{Role: "system", Content: routerSystemPrompt},
			{Role: "user", Content: trimmed},
		},
		Temperature: 0.0,
		MaxTokens:   8,
	})
	if err != nil {
		r.log.Warn("llm routing failed, defaulting to vectorstore", "error", err)
		return DecisionVectorstore, nil
	}

	switch Decision(strings.ToLower(strings.TrimSpace(reply))) {
	case DecisionLLM:
		return DecisionLLM, nil
	case DecisionVectorstore:
		return DecisionVectorstore, nil
	default:
		r.log.Warn("unrecognized routing reply, defaulting to vectorstore", "reply", reply)
		return DecisionVectorstore, nil
	}
}

// isSmallTalk reports whether the question is conversational filler.
func isSmallTalk(question string) bool {
	lower := strings.ToLower(question)

	// Long questions are never small talk even if they open with a greeting.
	if len(strings.Fields(lower)) > 6 {
		return false
	}

	for _, phrase := range smallTalk {
		if strings.HasPrefix(lower, phrase) || lower == strings.TrimSpace(phrase) {
			return true
		}
	}

	return false
}
