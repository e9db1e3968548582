// Package textvec turns short documents into fixed-size feature-hashed
// vectors and ranks them by cosine distance. It backs the similarity query
// of the partition gateways, which have no embedding model of their own.
package textvec

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/spaolacci/murmur3"
)

// DefaultDimensions is the vector size used by the gateways.
const DefaultDimensions = 256

// Vector is an L2-normalised feature vector.
type Vector []float64

// Embed tokenises text into lower-cased words and hashes each word (and each
// adjacent word pair) into a signed bucket.
func Embed(text string, dims int) Vector {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	v := make(Vector, dims)
	tokens := Tokenize(text)
	for i, tok := range tokens {
		add(v, tok, 1)
		if i > 0 {
			add(v, tokens[i-1]+" "+tok, 0.5)
		}
	}
	normalize(v)
	return v
}

// Tokenize splits text on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func add(v Vector, feature string, weight float64) {
	h1, h2 := murmur3.Sum128([]byte(feature))
	idx := h1 % uint64(len(v))
	if h2&1 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

func normalize(v Vector) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] /= n
	}
}

// Distance returns the cosine distance in [0, 2]. Empty vectors are at distance 1.
func Distance(a, b Vector) float64 {
	if len(a) != len(b) {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// Scored pairs an index into the caller's slice with its distance.
type Scored struct {
	Index    int
	Distance float64
}

// Rank embeds query and every document, and returns the k closest documents
// ordered by ascending distance. Ties keep input order.
func Rank(query string, documents []string, k int) []Scored {
	if k <= 0 || len(documents) == 0 {
		return nil
	}
	q := Embed(query, DefaultDimensions)
	out := make([]Scored, len(documents))
	for i, doc := range documents {
		out[i] = Scored{Index: i, Distance: Distance(q, Embed(doc, DefaultDimensions))}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if k < len(out) {
		out = out[:k]
	}
	return out
}
