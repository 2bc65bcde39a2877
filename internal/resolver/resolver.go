// ABOUTME: Tiered response resolution: exact-match, classified-direct, retrieval, generative
// ABOUTME: Ordered strategy chain; failures cascade, never surface to the caller

package resolver

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/call-gateway/internal/retrieval"
)

// Provenance tags recorded with every resolution.
const (
	SourceExactMatch         = "exact-match"
	SourceClassifiedDirect   = "classified-direct"
	SourceRetrievalAugmented = "retrieval-augmented"
	SourceGenerativeFallback = "generative-fallback"
	SourceErrorFallback      = "error-fallback"
)

// apologyText is the fixed response when every tier fails.
const apologyText = "I apologize, but I'm having trouble answering right now. Could you please try again?"

// factPrompt is the grounding instruction prefix for direct statistical
// questions; routing these straight to the model with pinned reference
// numbers beats a narrow document index.
const factPrompt = `You are an AI assistant providing accurate and consistent information.

Response Rules:
1. Always respond in the same language as the question
2. Use reliable sources (World Population Review, UN)
3. Include the year for statistics
4. Structure responses clearly
5. If uncertain, explicitly state lack of exact information

Global Statistics Reference:
- Global Population: 8.1 billion (2024, World Population Review)
- Countries: 195 (UN: 193 members + 2 observers)

Question: `

// ragPrompt instructs the model to stay inside the retrieved context.
const ragPrompt = `Answer concisely based on the provided context. If the context does not contain the answer, say "UNKNOWN".

Question: `

// Generator is the generative-LLM collaborator contract.
type Generator interface {
	Generate(ctx context.Context, prompt string, grounding []string) (string, error)
}

// Retriever is the similarity-search collaborator contract, satisfied by
// *retrieval.Handle.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]retrieval.Passage, error)
}

// Request is one normalized resolution request.
type Request struct {
	Utterance string
	SessionID string
	Locale    string // hint only; phrase tables of every locale are scanned
}

// Result is the outcome of a resolution.
type Result struct {
	Text    string
	Source  string
	Elapsed time.Duration
}

// Options tunes the resolver.
type Options struct {
	Packs           []LocalePack  // defaults to DefaultLocalePacks
	TopK            int           // retrieval passages, default 2
	ProviderTimeout time.Duration // per provider call, default 10s
}

// Resolver picks the cheapest strategy that can answer an utterance.
// Resolve never returns an error: total failure degrades to a fixed apology.
type Resolver struct {
	generator Generator
	retriever Retriever
	opts      Options
	logger    *slog.Logger

	strategies []strategy
}

// strategy is one tier in the cascade. A nil result with nil error means the
// tier does not apply; an error means the tier failed. Either way evaluation
// continues with the next tier.
type strategy struct {
	name string
	run  func(ctx context.Context, utterance string) (*Result, error)
}

// New creates a Resolver. retriever may be nil, in which case the retrieval
// tier always cascades to the generative fallback.
func New(generator Generator, retriever Retriever, opts Options) *Resolver {
	if len(opts.Packs) == 0 {
		opts.Packs = DefaultLocalePacks()
	}
	if opts.TopK <= 0 {
		opts.TopK = 2
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 10 * time.Second
	}
	r := &Resolver{
		generator: generator,
		retriever: retriever,
		opts:      opts,
		logger:    slog.Default().With("component", "resolver"),
	}
	r.strategies = []strategy{
		{name: SourceExactMatch, run: r.exactMatch},
		{name: SourceClassifiedDirect, run: r.classifiedDirect},
		{name: SourceRetrievalAugmented, run: r.retrievalAugmented},
		{name: SourceGenerativeFallback, run: r.generativeFallback},
	}
	return r
}

// Packs exposes the configured locale phrase tables (used for greetings).
func (r *Resolver) Packs() []LocalePack {
	return r.opts.Packs
}

// Resolve runs the utterance through the tier cascade and returns the first
// successful result. Provider failures are absorbed; if every tier fails the
// result carries the fixed apology with provenance error-fallback.
func (r *Resolver) Resolve(ctx context.Context, req Request) Result {
	start := time.Now()
	utterance := strings.ToLower(strings.TrimSpace(req.Utterance))

	for _, strat := range r.strategies {
		result, err := strat.run(ctx, utterance)
		if err != nil {
			r.logger.Warn("resolution tier failed",
				"tier", strat.name,
				"session_id", req.SessionID,
				"error", err)
			continue
		}
		if result == nil {
			continue
		}
		result.Elapsed = time.Since(start)
		r.logger.Debug("utterance resolved",
			"tier", result.Source,
			"session_id", req.SessionID,
			"elapsed", result.Elapsed)
		return *result
	}

	return Result{
		Text:    apologyText,
		Source:  SourceErrorFallback,
		Elapsed: time.Since(start),
	}
}

// exactMatch answers from the canned phrase tables. Zero provider calls.
func (r *Resolver) exactMatch(_ context.Context, utterance string) (*Result, error) {
	for _, pack := range r.opts.Packs {
		for _, exact := range pack.ExactAnswers {
			if strings.Contains(utterance, exact.Phrase) {
				return &Result{Text: exact.Answer, Source: SourceExactMatch}, nil
			}
		}
	}
	return nil, nil
}

// classifiedDirect routes statistical and comparison questions straight to
// the model with the fact-grounding prefix, skipping retrieval entirely.
func (r *Resolver) classifiedDirect(ctx context.Context, utterance string) (*Result, error) {
	if !r.matchesKeywords(utterance) {
		return nil, nil
	}
	text, err := r.generate(ctx, factPrompt+utterance, nil)
	if err != nil {
		return nil, err
	}
	return &Result{Text: text, Source: SourceClassifiedDirect}, nil
}

// retrievalAugmented grounds the answer in the document corpus. If the index
// is unavailable, or the model cannot answer from the retrieved context, the
// tier cascades so the generative fallback takes over.
func (r *Resolver) retrievalAugmented(ctx context.Context, utterance string) (*Result, error) {
	if r.retriever == nil {
		return nil, retrieval.ErrIndexUnavailable
	}

	searchCtx, cancel := context.WithTimeout(ctx, r.opts.ProviderTimeout)
	passages, err := r.retriever.Search(searchCtx, utterance, r.opts.TopK)
	cancel()
	if err != nil {
		return nil, err
	}

	grounding := make([]string, 0, len(passages))
	for _, p := range passages {
		grounding = append(grounding, p.Content)
	}
	text, err := r.generate(ctx, ragPrompt+utterance, grounding)
	if err != nil {
		return nil, err
	}

	// The corpus is narrow. When the grounded answer is a refusal, escalate
	// to the ungrounded model and let the next tier own the provenance.
	if r.isFallbackAnswer(text) {
		r.logger.Debug("retrieval answer refused, escalating", "answer", text)
		return nil, nil
	}
	return &Result{Text: text, Source: SourceRetrievalAugmented}, nil
}

// generativeFallback is the always-available path: a direct model call with
// no retrieved context.
func (r *Resolver) generativeFallback(ctx context.Context, utterance string) (*Result, error) {
	text, err := r.generate(ctx, factPrompt+utterance, nil)
	if err != nil {
		return nil, err
	}
	return &Result{Text: text, Source: SourceGenerativeFallback}, nil
}

// generate calls the LLM under the bounded provider timeout.
func (r *Resolver) generate(ctx context.Context, prompt string, grounding []string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.ProviderTimeout)
	defer cancel()
	return r.generator.Generate(callCtx, prompt, grounding)
}

// matchesKeywords reports whether the utterance contains a statistical or
// comparison indicator in any configured locale.
func (r *Resolver) matchesKeywords(utterance string) bool {
	for _, pack := range r.opts.Packs {
		for _, kw := range pack.StatsKeywords {
			if strings.Contains(utterance, kw) {
				return true
			}
		}
		for _, kw := range pack.ComparisonKeywords {
			if strings.Contains(utterance, kw) {
				return true
			}
		}
	}
	return false
}

// isFallbackAnswer reports whether a generated answer matches any configured
// "don't know" phrase.
func (r *Resolver) isFallbackAnswer(answer string) bool {
	lowered := strings.ToLower(answer)
	for _, pack := range r.opts.Packs {
		for _, phrase := range pack.FallbackPhrases {
			if strings.Contains(lowered, phrase) {
				return true
			}
		}
	}
	return false
}
