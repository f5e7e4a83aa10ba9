package invdx

import (
	"encoding/binary"
	"slices"
)

// wordCountCapacity is the in-memory accumulator's sole backpressure
// signal. It is not exposed through BuildOptions or the CLI, as in the
// original implementation this module is grounded on — a configurable
// ceiling is a reasonable extension but not part of the core contract.
// It is a var rather than a const solely so tests can lower it to exercise
// the flush path without needing unrealistic amounts of input text.
var wordCountCapacity uint64 = 100_000_000

// posting (a.k.a. hit) is one (term, document) record: a little-endian u32
// document id followed by zero or more little-endian u32 term positions.
// Postings are opaque once built; callers concatenate them verbatim.
type posting []byte

func newPosting(docID uint32) posting {
	p := make(posting, 4, 8)
	binary.LittleEndian.PutUint32(p, docID)
	return p
}

func (p *posting) appendPosition(pos uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], pos)
	*p = append(*p, buf[:]...)
}

func postingDocID(p []byte) uint32 {
	return binary.LittleEndian.Uint32(p[:4])
}

func postingTermFrequency(p []byte) int {
	return (len(p) - 4) / 4
}

// InMemoryIndex maps a term to the ordered sequence of postings for it,
// plus a running total of emitted tokens. Within an index produced by
// IndexSingleDocument, each term maps to exactly one posting (Invariant A).
// After merging two indexes whose document ids are disjoint and increasing
// left-to-right, a term's combined posting sequence has strictly increasing
// document ids (Invariant B) — the pipeline is responsible for presenting
// indexes to Merge in that order.
type InMemoryIndex struct {
	terms     map[string][]posting
	wordCount uint64
}

// NewInMemoryIndex returns an empty index.
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{terms: make(map[string][]posting)}
}

// IndexSingleDocument tokenizes text and builds an index with exactly one
// posting per distinct term found, in document order.
func IndexSingleDocument(docID uint32, text string) *InMemoryIndex {
	idx := NewInMemoryIndex()

	for _, tok := range tokenize(text) {
		p, ok := idx.terms[tok.word]
		if !ok {
			np := newPosting(docID)
			idx.terms[tok.word] = []posting{np}
			p = idx.terms[tok.word]
		}
		p[0].appendPosition(tok.pos)
		idx.wordCount++
	}

	return idx
}

// Merge appends other's posting sequence for each term onto this index's
// sequence for that term, and adds the word counts. other must not be used
// after this call: the operation conceptually moves it, mirroring the
// original Rust implementation's by-value merge.
func (ix *InMemoryIndex) Merge(other *InMemoryIndex) {
	for term, postings := range other.terms {
		ix.terms[term] = append(ix.terms[term], postings...)
	}
	ix.wordCount += other.wordCount
}

// IsLarge reports whether the accumulator has passed the capacity
// threshold and should be flushed to disk.
func (ix *InMemoryIndex) IsLarge() bool {
	return ix.wordCount > wordCountCapacity
}

// IsEmpty reports whether the index has accumulated no tokens at all.
func (ix *InMemoryIndex) IsEmpty() bool {
	return ix.wordCount == 0
}

// WordCount returns the total number of tokens (including duplicates)
// accumulated so far.
func (ix *InMemoryIndex) WordCount() uint64 {
	return ix.wordCount
}

// SortedTerms returns the index's terms in ascending UTF-8 byte order, the
// order required by the on-disk file format.
func (ix *InMemoryIndex) SortedTerms() []string {
	terms := make([]string, 0, len(ix.terms))
	for t := range ix.terms {
		terms = append(terms, t)
	}
	slices.Sort(terms)
	return terms
}

// Postings returns the stored-order posting sequence for term.
func (ix *InMemoryIndex) Postings(term string) []posting {
	return ix.terms[term]
}
