package dedupe

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/spaolacci/murmur3"
)

const (
	MethodHashing   = "hashing"
	MethodEmbedding = "embedding"

	DefaultFeatures  = 1 << 12
	DefaultThreshold = 0.8

	embeddingBatchSize = 64
)

// Vector is a sparse feature vector keyed by dimension.
type Vector map[int]float64

// Cosine returns the cosine similarity of a and b, or 0 when either is
// empty.
func Cosine(a, b Vector) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var dot float64
	for i, x := range a {
		dot += x * b[i]
	}
	na, nb := a.norm(), b.norm()
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}

func (v Vector) norm() float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func (v Vector) normalize() Vector {
	n := v.norm()
	if n == 0 {
		return v
	}
	for i := range v {
		v[i] /= n
	}
	return v
}

// Vectorizer turns story texts into comparable vectors, one per text.
type Vectorizer interface {
	Vectorize(ctx context.Context, texts []string) ([]Vector, error)
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]{2,}`)

// Tokenize lowercases text and returns its word tokens of two or more
// characters.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// HashingVectorizer maps token counts into a fixed number of buckets with
// signed 32-bit murmur3, then L2 normalises.
type HashingVectorizer struct {
	Features int
}

// NewHashingVectorizer returns a vectorizer with the given bucket count,
// falling back to DefaultFeatures.
func NewHashingVectorizer(features int) *HashingVectorizer {
	if features <= 0 {
		features = DefaultFeatures
	}
	return &HashingVectorizer{Features: features}
}

func (h *HashingVectorizer) Vectorize(_ context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashingVectorizer) vector(text string) Vector {
	v := make(Vector)
	for _, tok := range Tokenize(text) {
		v[h.bucket(tok)]++
	}
	return v.normalize()
}

func (h *HashingVectorizer) bucket(token string) int {
	signed := int64(int32(murmur3.Sum32WithSeed([]byte(token), 0)))
	if signed < 0 {
		signed = -signed
	}
	return int(signed % int64(h.Features))
}

// EmbeddingsAPI is the slice of the OpenAI client used for embeddings.
type EmbeddingsAPI interface {
	New(ctx context.Context, body openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error)
}

// EmbeddingVectorizer requests dense embeddings from an OpenAI compatible
// endpoint in batches.
type EmbeddingVectorizer struct {
	api   EmbeddingsAPI
	model string
}

func NewEmbeddingVectorizer(api EmbeddingsAPI, model string) *EmbeddingVectorizer {
	return &EmbeddingVectorizer{api: api, model: model}
}

// Vectorize embeds non-empty texts. Empty texts yield empty vectors that
// match nothing.
func (e *EmbeddingVectorizer) Vectorize(ctx context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	var (
		batch []string
		pos   []int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		resp, err := e.api.New(ctx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(e.model),
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
		})
		if err != nil {
			return fmt.Errorf("create embeddings: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return fmt.Errorf("embeddings returned %d vectors for %d inputs", len(resp.Data), len(batch))
		}
		for _, d := range resp.Data {
			if d.Index < 0 || int(d.Index) >= len(pos) {
				return fmt.Errorf("embedding index %d out of range", d.Index)
			}
			v := make(Vector, len(d.Embedding))
			for i, x := range d.Embedding {
				if x != 0 {
					v[i] = x
				}
			}
			out[pos[d.Index]] = v
		}
		batch, pos = batch[:0], pos[:0]
		return nil
	}

	for i, t := range texts {
		out[i] = Vector{}
		if t = strings.TrimSpace(t); t == "" {
			continue
		}
		batch = append(batch, t)
		pos = append(pos, i)
		if len(batch) == embeddingBatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}
