package retriever

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"tally/internal/corpus"
)

const (
	maxFeatures = 2000
	maxDocFreq  = 0.95 // terms in more than 95% of chunks are dropped
	minScore    = 0.01 // results below this similarity are dropped
)

// Index is an in-memory TF-IDF index over corpus chunks. Vectors use
// unigrams and bigrams, are L2-normalized, and are scored by cosine
// similarity.
type Index struct {
	chunks  []corpus.Chunk
	vocab   map[string]int
	idf     []float64
	vectors []sparseVec
}

// sparseVec maps vocabulary indexes to weights.
type sparseVec map[int]float64

// BuildIndex builds a TF-IDF index over the given chunks.
func BuildIndex(chunks []corpus.Chunk) *Index {
	docs := make([][]string, len(chunks))
	counts := make(map[string]int) // collection frequency
	docFreq := make(map[string]int)

	for i, c := range chunks {
		terms := ngrams(tokenize(c.Content))
		docs[i] = terms
		seen := make(map[string]bool, len(terms))
		for _, t := range terms {
			counts[t]++
			if !seen[t] {
				seen[t] = true
				docFreq[t]++
			}
		}
	}

	// Drop overly common terms, then keep the most frequent maxFeatures.
	maxDF := int(maxDocFreq * float64(len(chunks)))
	if maxDF < 1 {
		maxDF = 1
	}
	candidates := make([]string, 0, len(counts))
	for t, df := range docFreq {
		if len(chunks) > 1 && df > maxDF {
			continue
		}
		candidates = append(candidates, t)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if counts[candidates[i]] != counts[candidates[j]] {
			return counts[candidates[i]] > counts[candidates[j]]
		}
		return candidates[i] < candidates[j]
	})
	if len(candidates) > maxFeatures {
		candidates = candidates[:maxFeatures]
	}

	vocab := make(map[string]int, len(candidates))
	for i, t := range candidates {
		vocab[t] = i
	}

	// Smoothed inverse document frequency.
	n := float64(len(chunks))
	idf := make([]float64, len(candidates))
	for t, i := range vocab {
		idf[i] = math.Log((1+n)/(1+float64(docFreq[t]))) + 1
	}

	ix := &Index{chunks: chunks, vocab: vocab, idf: idf}
	ix.vectors = make([]sparseVec, len(chunks))
	for i, terms := range docs {
		ix.vectors[i] = ix.vectorize(terms)
	}
	return ix
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int { return len(ix.chunks) }

// Search returns the top-k chunks by cosine similarity to the query,
// ordered by descending score. Results scoring at or below the minimum
// similarity are dropped.
func (ix *Index) Search(query string, k int) []corpus.Scored {
	if strings.TrimSpace(query) == "" || len(ix.chunks) == 0 {
		return nil
	}

	qv := ix.vectorize(ngrams(tokenize(query)))
	if len(qv) == 0 {
		return nil
	}

	scored := make([]corpus.Scored, 0, len(ix.chunks))
	for i, dv := range ix.vectors {
		score := dot(qv, dv)
		if score > minScore {
			scored = append(scored, corpus.Scored{Chunk: ix.chunks[i], Score: score})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.ChunkID < scored[j].Chunk.ChunkID
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// vectorize builds an L2-normalized TF-IDF vector for the given terms.
func (ix *Index) vectorize(terms []string) sparseVec {
	v := make(sparseVec)
	for _, t := range terms {
		if i, ok := ix.vocab[t]; ok {
			v[i]++
		}
	}
	var norm float64
	for i := range v {
		v[i] *= ix.idf[i]
		norm += v[i] * v[i]
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}

func dot(a, b sparseVec) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for i, w := range a {
		sum += w * b[i]
	}
	return sum
}

// tokenize lowercases text and splits it into word tokens of two or more
// characters, dropping English stop words.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// ngrams returns the unigrams plus adjacent bigrams of the token stream.
func ngrams(tokens []string) []string {
	out := make([]string, 0, 2*len(tokens))
	out = append(out, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		out = append(out, tokens[i]+" "+tokens[i+1])
	}
	return out
}

var stopWords = map[string]bool{
	"about": true, "above": true, "after": true, "again": true, "against": true,
	"all": true, "am": true, "an": true, "and": true, "any": true, "are": true,
	"as": true, "at": true, "be": true, "because": true, "been": true,
	"before": true, "being": true, "below": true, "between": true, "both": true,
	"but": true, "by": true, "can": true, "did": true, "do": true, "does": true,
	"doing": true, "down": true, "during": true, "each": true, "few": true,
	"for": true, "from": true, "further": true, "had": true, "has": true,
	"have": true, "having": true, "he": true, "her": true, "here": true,
	"hers": true, "him": true, "his": true, "how": true, "if": true, "in": true,
	"into": true, "is": true, "it": true, "its": true, "itself": true,
	"just": true, "me": true, "more": true, "most": true, "my": true,
	"myself": true, "no": true, "nor": true, "not": true, "now": true,
	"of": true, "off": true, "on": true, "once": true, "only": true, "or": true,
	"other": true, "our": true, "ours": true, "out": true, "over": true,
	"own": true, "same": true, "she": true, "should": true, "so": true,
	"some": true, "such": true, "than": true, "that": true, "the": true,
	"their": true, "theirs": true, "them": true, "then": true, "there": true,
	"these": true, "they": true, "this": true, "those": true, "through": true,
	"to": true, "too": true, "under": true, "until": true, "up": true,
	"very": true, "was": true, "we": true, "were": true, "what": true,
	"when": true, "where": true, "which": true, "while": true, "who": true,
	"whom": true, "why": true, "will": true, "with": true, "you": true,
	"your": true, "yours": true, "yourself": true,
}
