package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// BERT special token ids and vocabulary size of the uncased MiniLM vocabulary.
const (
	clsToken      = 101
	sepToken      = 102
	firstWordID   = 1000
	vocabSize     = 30522
	defaultSeqLen = 256
)

// Tokenizer produces BERT-style model inputs: input_ids, attention_mask, token_type_ids.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer maps each word of Tokens(text) to a stable id in the word range of the
// vocabulary. It does not reproduce WordPiece; it only needs to be deterministic.
type SimpleTokenizer struct{}

// Tokenize returns [CLS] words... [SEP] padded with zeros to maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = defaultSeqLen
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = clsToken
	attentionMask[0] = 1
	pos := 1
	for _, word := range Tokens(text) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = WordID(word)
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = sepToken
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// Tokens lowercases text and splits it into words of letters, digits and underscores.
// Snake_case identifiers are emitted whole and then part by part, so "patient_id"
// yields "patient_id", "patient", "id".
func Tokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "_")
		if f == "" {
			continue
		}
		tokens = append(tokens, f)
		if strings.Contains(f, "_") {
			for _, part := range strings.Split(f, "_") {
				if part != "" {
					tokens = append(tokens, part)
				}
			}
		}
	}
	return tokens
}

// WordID returns the token id of word, always in [firstWordID, vocabSize).
func WordID(word string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(word))
	return firstWordID + int64(h.Sum32()%(vocabSize-firstWordID))
}
