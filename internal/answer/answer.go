// Package answer implements the retrieval-augmented answerer behind /chat
// and the voice turn.
//
// A question is embedded, the closest catalogue chunks are retrieved, and a
// single completion is requested with the evidence numbered in the system
// prompt. The model is instructed to cite evidence as [n]; the same numbering
// is returned to the client as [Citation.Rank].
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/natuvoice/internal/knowledge"
	"github.com/MrWong99/natuvoice/internal/observe"
	"github.com/MrWong99/natuvoice/pkg/provider/embeddings"
	"github.com/MrWong99/natuvoice/pkg/provider/llm"
)

// Defaults applied when the corresponding option is not given.
const (
	DefaultBotName     = "NatuBot"
	DefaultEmptyReply  = "No logré escuchar bien tu mensaje. ¿Podrías repetirlo, por favor?"
	DefaultTopK        = 5
	DefaultMaxTopK     = 10
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 800
)

// Question is one visitor question.
type Question struct {
	Text string

	// TopK is the number of chunks to retrieve. Zero selects the default;
	// other values are clamped to [1, max].
	TopK int

	// Filter narrows retrieval by chunk metadata.
	Filter knowledge.Filter
}

// Citation describes one piece of evidence given to the model.
type Citation struct {
	Rank        int      `json:"rank"`
	ProductID   string   `json:"product_id"`
	ProductName string   `json:"product_name"`
	Section     string   `json:"section"`
	SourcePDF   string   `json:"source_pdf"`
	SourcePages []string `json:"source_pages"`
	Score       float64  `json:"score"`
}

// Answer is the reply to a [Question].
type Answer struct {
	Text        string     `json:"answer"`
	Citations   []Citation `json:"citations"`
	UsedContext bool       `json:"used_context"`
}

// Service answers questions. It is safe for concurrent use.
type Service struct {
	llm       llm.Provider
	embedder  embeddings.Provider
	retriever knowledge.Retriever

	botName     string
	emptyReply  string
	defaultTopK int
	maxTopK     int
	temperature float64
	maxTokens   int
}

// Option configures a [Service].
type Option func(*Service)

// WithRetrieval enables evidence retrieval. Without it every answer is
// generated with an empty evidence block.
func WithRetrieval(e embeddings.Provider, r knowledge.Retriever) Option {
	return func(s *Service) {
		s.embedder = e
		s.retriever = r
	}
}

// WithBotName sets the persona name used in the prompt.
func WithBotName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.botName = name
		}
	}
}

// WithEmptyReply sets the reply returned for blank input.
func WithEmptyReply(text string) Option {
	return func(s *Service) {
		if text != "" {
			s.emptyReply = text
		}
	}
}

// WithTopK sets the default and maximum retrieval depth.
func WithTopK(def, maxK int) Option {
	return func(s *Service) {
		s.defaultTopK = def
		s.maxTopK = maxK
	}
}

// WithGeneration sets the sampling temperature and completion length.
// Zero values keep the defaults.
func WithGeneration(temperature float64, maxTokens int) Option {
	return func(s *Service) {
		if temperature > 0 {
			s.temperature = temperature
		}
		if maxTokens > 0 {
			s.maxTokens = maxTokens
		}
	}
}

// New returns a Service backed by provider.
func New(provider llm.Provider, opts ...Option) (*Service, error) {
	if provider == nil {
		return nil, errors.New("answer: llm provider is required")
	}
	s := &Service{
		llm:         provider,
		botName:     DefaultBotName,
		emptyReply:  DefaultEmptyReply,
		defaultTopK: DefaultTopK,
		maxTopK:     DefaultMaxTopK,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
	for _, o := range opts {
		o(s)
	}
	if s.maxTopK < 1 {
		return nil, fmt.Errorf("answer: max top_k must be >= 1, got %d", s.maxTopK)
	}
	if (s.embedder == nil) != (s.retriever == nil) {
		return nil, errors.New("answer: retrieval needs both an embeddings provider and a retriever")
	}
	s.defaultTopK = s.clamp(s.defaultTopK)
	return s, nil
}

// Retrieval reports whether answers are grounded on retrieved evidence.
func (s *Service) Retrieval() bool { return s.retriever != nil }

// EmptyReply returns the reply used for blank input.
func (s *Service) EmptyReply() string { return s.emptyReply }

// TopK returns the effective retrieval depth for a requested value.
func (s *Service) TopK(requested int) int {
	if requested == 0 {
		return s.defaultTopK
	}
	return s.clamp(requested)
}

func (s *Service) clamp(k int) int {
	return min(max(k, 1), s.maxTopK)
}

// Answer answers q. Blank text returns the empty reply without contacting
// any backend.
func (s *Service) Answer(ctx context.Context, q Question) (*Answer, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return &Answer{Text: s.emptyReply, Citations: []Citation{}}, nil
	}

	topK := s.TopK(q.TopK)
	ctx, span := observe.StartSpan(ctx, "answer.generate")
	defer span.End()
	span.SetAttributes(attribute.Int("top_k", topK), attribute.Bool("retrieval", s.Retrieval()))

	results, err := s.retrieve(ctx, text, topK, q.Filter)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: SystemPrompt(s.botName, results),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: UserPrompt(text)}},
		Temperature:  s.temperature,
		MaxTokens:    s.maxTokens,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("answer: complete: %w", err)
	}

	observe.Logger(ctx).Debug("answer generated",
		"top_k", topK,
		"evidence", len(results),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	return &Answer{
		Text:        strings.TrimSpace(resp.Content),
		Citations:   citations(results),
		UsedContext: len(results) > 0,
	}, nil
}

func (s *Service) retrieve(ctx context.Context, text string, topK int, filter knowledge.Filter) ([]knowledge.Result, error) {
	if s.retriever == nil {
		return nil, nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("answer: embed question: %w", err)
	}
	results, err := s.retriever.Search(ctx, vec, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("answer: retrieve: %w", err)
	}
	return results, nil
}

func citations(results []knowledge.Result) []Citation {
	out := make([]Citation, 0, len(results))
	for i, r := range results {
		pages := r.Chunk.SourcePages
		if pages == nil {
			pages = []string{}
		}
		out = append(out, Citation{
			Rank:        i + 1,
			ProductID:   r.Chunk.ProductID,
			ProductName: r.Chunk.ProductName,
			Section:     r.Chunk.Section,
			SourcePDF:   r.Chunk.SourcePDF,
			SourcePages: pages,
			Score:       r.Score,
		})
	}
	return out
}
