// Package text normalizes free-text messages into token sequences.
package text

import (
	"regexp"
	"strings"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
	"github.com/jdkato/prose/tokenize"
)

// URLPlaceholder replaces every URL found in a message.
const URLPlaceholder = "urlplaceholder"

var urlPattern = regexp.MustCompile(`http[s]?://(?:[a-zA-Z]|[0-9]|[$-_@.&+]|[!*\(\),]|(?:%[0-9a-fA-F][0-9a-fA-F]))+`)

// Analyzer turns a document into tokens.
type Analyzer interface {
	Tokenize(text string) []string
}

// Tokenizer masks URLs, splits text into sentences and words, and reduces
// every word to a lowercase lemma. It holds no mutable state after New and
// is safe for concurrent use.
type Tokenizer struct {
	sentences  *tokenize.PunktSentenceTokenizer
	words      *tokenize.TreebankWordTokenizer
	lemmatizer *golem.Lemmatizer
}

// New loads the English sentence model and lemma dictionary.
func New() (*Tokenizer, error) {
	lemmatizer, err := golem.New(en.New())
	if err != nil {
		return nil, err
	}

	return &Tokenizer{
		sentences:  tokenize.NewPunktSentenceTokenizer(),
		words:      tokenize.NewTreebankWordTokenizer(),
		lemmatizer: lemmatizer,
	}, nil
}

// Tokenize returns the normalized tokens of text in order. Empty input
// yields an empty sequence.
func (t *Tokenizer) Tokenize(text string) []string {
	text = MaskURLs(text)
	if strings.TrimSpace(text) == "" {
		return []string{}
	}

	tokens := make([]string, 0, len(text)/4)
	for _, sentence := range t.sentences.Tokenize(text) {
		for _, word := range t.words.Tokenize(sentence) {
			if tok := t.normalize(word); tok != "" {
				tokens = append(tokens, tok)
			}
		}
	}
	return tokens
}

func (t *Tokenizer) normalize(word string) string {
	word = strings.TrimSpace(word)
	if word == "" {
		return ""
	}
	if word == URLPlaceholder {
		return word
	}
	return strings.TrimSpace(strings.ToLower(t.lemmatizer.Lemma(word)))
}

// MaskURLs replaces every http or https URL in text with URLPlaceholder.
func MaskURLs(text string) string {
	return urlPattern.ReplaceAllLiteralString(text, URLPlaceholder)
}
