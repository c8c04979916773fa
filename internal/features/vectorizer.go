package features

import (
	"bytes"
	"encoding/gob"
	"math"
	"sort"
	"strings"

	"github.com/ricesearch/disaster-response/internal/pkg/errors"
	"github.com/ricesearch/disaster-response/internal/text"
)

// Options configures a Vectorizer.
type Options struct {
	// Lowercase lowercases each document before tokenization.
	Lowercase bool
}

// DefaultOptions returns the conventional count vectorizer settings.
func DefaultOptions() Options {
	return Options{Lowercase: true}
}

// Vectorizer learns a vocabulary and IDF weights from a training corpus and
// maps documents to L2-normalized TF-IDF vectors. A Vectorizer is fitted at
// most once; after that it is read-only and safe for concurrent Transform.
type Vectorizer struct {
	analyzer text.Analyzer
	opts     Options

	fitted bool
	vocab  map[string]int
	terms  []string
	idf    []float64
}

// NewVectorizer returns an unfitted vectorizer.
func NewVectorizer(analyzer text.Analyzer, opts Options) *Vectorizer {
	return &Vectorizer{
		analyzer: analyzer,
		opts:     opts,
	}
}

// Fitted reports whether the vocabulary has been learned.
func (v *Vectorizer) Fitted() bool {
	return v.fitted
}

// VocabularySize returns the vector length, or 0 before fitting.
func (v *Vectorizer) VocabularySize() int {
	return len(v.terms)
}

// Terms returns the vocabulary in index order.
func (v *Vectorizer) Terms() []string {
	out := make([]string, len(v.terms))
	copy(out, v.terms)
	return out
}

// FitTransform learns the vocabulary and IDF weights from docs and returns
// their vectors.
func (v *Vectorizer) FitTransform(docs []string) (Matrix, error) {
	if v.fitted {
		return Matrix{}, errors.AlreadyFittedError("vectorizer")
	}
	if len(docs) == 0 {
		return Matrix{}, errors.EmptyInputError("cannot fit vectorizer on zero documents")
	}

	tokenized := make([][]string, len(docs))
	vocab := make(map[string]int)
	var terms []string

	for i, doc := range docs {
		tokens := v.tokenize(doc)
		tokenized[i] = tokens
		for _, tok := range tokens {
			if _, ok := vocab[tok]; !ok {
				vocab[tok] = len(terms)
				terms = append(terms, tok)
			}
		}
	}

	if len(terms) == 0 {
		return Matrix{}, errors.EmptyInputError("training documents produced an empty vocabulary")
	}

	df := make([]int, len(terms))
	counts := make([]map[int]int, len(docs))
	for i, tokens := range tokenized {
		counts[i] = termCounts(tokens, vocab)
		for j := range counts[i] {
			df[j]++
		}
	}

	n := float64(len(docs))
	idf := make([]float64, len(terms))
	for j, d := range df {
		idf[j] = math.Log((1+n)/(1+float64(d))) + 1
	}

	v.vocab = vocab
	v.terms = terms
	v.idf = idf
	v.fitted = true

	rows := make([]SparseVector, len(docs))
	for i, c := range counts {
		rows[i] = v.weigh(c)
	}
	return Matrix{Rows: rows, Dim: len(terms)}, nil
}

// Transform maps docs onto the learned vocabulary. Unknown tokens are
// ignored, so every vector has length VocabularySize.
func (v *Vectorizer) Transform(docs []string) (Matrix, error) {
	if !v.fitted {
		return Matrix{}, errors.NotFittedError("vectorizer")
	}

	rows := make([]SparseVector, len(docs))
	for i, doc := range docs {
		rows[i] = v.weigh(termCounts(v.tokenize(doc), v.vocab))
	}
	return Matrix{Rows: rows, Dim: len(v.terms)}, nil
}

func (v *Vectorizer) tokenize(doc string) []string {
	if v.opts.Lowercase {
		doc = strings.ToLower(doc)
	}
	return v.analyzer.Tokenize(doc)
}

func termCounts(tokens []string, vocab map[string]int) map[int]int {
	counts := make(map[int]int, len(tokens))
	for _, tok := range tokens {
		if j, ok := vocab[tok]; ok {
			counts[j]++
		}
	}
	return counts
}

// weigh applies IDF to raw counts and L2-normalizes the result.
func (v *Vectorizer) weigh(counts map[int]int) SparseVector {
	if len(counts) == 0 {
		return SparseVector{}
	}

	idx := make([]int, 0, len(counts))
	for j := range counts {
		idx = append(idx, j)
	}
	sort.Ints(idx)

	vals := make([]float64, len(idx))
	var norm float64
	for k, j := range idx {
		w := float64(counts[j]) * v.idf[j]
		vals[k] = w
		norm += w * w
	}

	norm = math.Sqrt(norm)
	if norm > 0 {
		for k := range vals {
			vals[k] /= norm
		}
	}
	return SparseVector{Indices: idx, Values: vals}
}

// vectorizerState is the gob form of a fitted vectorizer.
type vectorizerState struct {
	Lowercase bool
	Terms     []string
	IDF       []float64
}

// MarshalBinary encodes the fitted state. The analyzer is not encoded.
func (v *Vectorizer) MarshalBinary() ([]byte, error) {
	if !v.fitted {
		return nil, errors.NotFittedError("vectorizer")
	}

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(vectorizerState{
		Lowercase: v.opts.Lowercase,
		Terms:     v.terms,
		IDF:       v.idf,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a fitted state produced by MarshalBinary.
func (v *Vectorizer) UnmarshalBinary(data []byte) error {
	var state vectorizerState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return err
	}
	if len(state.Terms) != len(state.IDF) {
		return errors.ValidationError("vectorizer state has mismatched terms and weights")
	}

	vocab := make(map[string]int, len(state.Terms))
	for j, term := range state.Terms {
		vocab[term] = j
	}

	v.opts.Lowercase = state.Lowercase
	v.vocab = vocab
	v.terms = state.Terms
	v.idf = state.IDF
	v.fitted = true
	return nil
}

// WithAnalyzer returns a copy of v that tokenizes with analyzer. The copy
// shares the fitted vocabulary and weights, which are never modified, so v
// itself stays untouched.
func (v *Vectorizer) WithAnalyzer(analyzer text.Analyzer) *Vectorizer {
	c := *v
	c.analyzer = analyzer
	return &c
}
