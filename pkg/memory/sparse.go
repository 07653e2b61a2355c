package memory

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// SparseIndex provides lexical search using BM25 scoring. The posting
// structure is updated incrementally on every write, so ingestion cost
// stays proportional to the document, not the corpus.
type SparseIndex struct {
	mu sync.RWMutex

	// BM25 parameters
	k1 float64
	b  float64

	// Inverted index: term -> set of chunk IDs
	postings map[string]map[string]struct{}

	// Forward index: chunk ID -> term frequencies
	termFreqs map[string]map[string]int

	// Document lengths (in tokens)
	docLengths map[string]int

	// Corpus stats
	totalDocs int
	totalLen  int

	stopWords map[string]struct{}
}

// NewSparseIndex creates a BM25 index with the given parameters.
// Typical values are k1=1.5, b=0.75.
func NewSparseIndex(k1, b float64) *SparseIndex {
	return &SparseIndex{
		k1:         k1,
		b:          b,
		postings:   make(map[string]map[string]struct{}),
		termFreqs:  make(map[string]map[string]int),
		docLengths: make(map[string]int),
		stopWords:  defaultStopWords(),
	}
}

// Index adds or updates a document.
func (idx *SparseIndex) Index(chunkID, text string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.termFreqs[chunkID]; exists {
		idx.removeLocked(chunkID)
	}

	tokens := idx.tokenize(text)
	freqs := make(map[string]int)
	for _, token := range tokens {
		freqs[token]++
	}

	idx.termFreqs[chunkID] = freqs
	idx.docLengths[chunkID] = len(tokens)
	idx.totalDocs++
	idx.totalLen += len(tokens)

	for term := range freqs {
		if idx.postings[term] == nil {
			idx.postings[term] = make(map[string]struct{})
		}
		idx.postings[term][chunkID] = struct{}{}
	}
}

// Remove removes a document from the index.
func (idx *SparseIndex) Remove(chunkID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(chunkID)
}

func (idx *SparseIndex) removeLocked(chunkID string) {
	freqs, exists := idx.termFreqs[chunkID]
	if !exists {
		return
	}

	for term := range freqs {
		if docs, ok := idx.postings[term]; ok {
			delete(docs, chunkID)
			if len(docs) == 0 {
				delete(idx.postings, term)
			}
		}
	}

	idx.totalLen -= idx.docLengths[chunkID]
	idx.totalDocs--
	delete(idx.termFreqs, chunkID)
	delete(idx.docLengths, chunkID)
}

// Search returns the top-K chunk IDs for the query with their BM25
// scores, best first. Ties break on chunk ID so results are stable.
func (idx *SparseIndex) Search(query string, topK int) ([]string, []float64) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.totalDocs == 0 || topK <= 0 {
		return nil, nil
	}

	queryTokens := idx.tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	avgDL := float64(idx.totalLen) / float64(idx.totalDocs)

	candidates := make(map[string]struct{})
	for _, token := range queryTokens {
		for id := range idx.postings[token] {
			candidates[id] = struct{}{}
		}
	}

	type scored struct {
		id    string
		score float64
	}

	results := make([]scored, 0, len(candidates))
	for id := range candidates {
		score := idx.scoreLocked(id, queryTokens, avgDL)
		if score > 0 {
			results = append(results, scored{id: id, score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].id < results[j].id
	})

	if topK > len(results) {
		topK = len(results)
	}
	results = results[:topK]

	ids := make([]string, topK)
	scores := make([]float64, topK)
	for i, r := range results {
		ids[i] = r.id
		scores[i] = r.score
	}
	return ids, scores
}

// Len returns the number of indexed documents.
func (idx *SparseIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.totalDocs
}

// scoreLocked calculates the BM25 score for a document. Must be called
// with the read lock held.
func (idx *SparseIndex) scoreLocked(chunkID string, queryTokens []string, avgDL float64) float64 {
	docLen := float64(idx.docLengths[chunkID])
	freqs := idx.termFreqs[chunkID]
	score := 0.0

	for _, term := range queryTokens {
		tf := float64(freqs[term])
		if tf == 0 {
			continue
		}

		// IDF: log((N - n + 0.5) / (n + 0.5) + 1)
		n := float64(len(idx.postings[term]))
		idf := math.Log((float64(idx.totalDocs)-n+0.5)/(n+0.5) + 1.0)

		numerator := tf * (idx.k1 + 1)
		denominator := tf + idx.k1*(1-idx.b+idx.b*docLen/avgDL)
		score += idf * numerator / denominator
	}

	return score
}

// tokenize splits text into lowercase tokens, removing punctuation and
// stop words. CJK characters index as individual tokens.
func (idx *SparseIndex) tokenize(text string) []string {
	text = strings.ToLower(text)

	tokens := make([]string, 0, len(text)/4)
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else {
			if current.Len() > 0 {
				token := current.String()
				if _, isStop := idx.stopWords[token]; !isStop {
					tokens = append(tokens, token)
				}
				current.Reset()
			}
			if unicode.Is(unicode.Han, r) {
				tokens = append(tokens, string(r))
			}
		}
	}
	if current.Len() > 0 {
		token := current.String()
		if _, isStop := idx.stopWords[token]; !isStop {
			tokens = append(tokens, token)
		}
	}

	return tokens
}

func defaultStopWords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "is", "are", "was", "were", "be", "been", "being",
		"have", "has", "had", "do", "does", "did", "will", "would", "could",
		"should", "may", "might", "shall", "can", "need", "dare", "ought",
		"used", "to", "of", "in", "for", "on", "with", "at", "by", "from",
		"as", "into", "through", "during", "before", "after", "above", "below",
		"between", "out", "off", "over", "under", "again", "further", "then",
		"once", "and", "but", "or", "nor", "not", "so", "yet", "both",
		"either", "neither", "each", "every", "all", "any", "few", "more",
		"most", "other", "some", "such", "no", "only", "own", "same", "than",
		"too", "very", "just", "because", "if", "when", "where", "how", "what",
		"which", "who", "whom", "this", "that", "these", "those",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
