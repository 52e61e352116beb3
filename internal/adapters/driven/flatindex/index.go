package flatindex

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/viant/vec/search"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.SimilarityIndex = (*Index)(nil)

var magic = [4]byte{'E', 'V', 'F', 'X'}

const formatVersion = 2

// Index is an exact in-memory index over dense vectors.
type Index struct {
	buildID string
	metric  domain.Metric
	dim     int
	vecs    [][]float32
	mags    []float32
}

// Option configures an Index.
type Option func(*Index)

// WithBuildID stamps the build the index belongs to. The id is stored in the
// blob header.
func WithBuildID(id string) Option {
	return func(x *Index) {
		x.buildID = id
	}
}

// New builds an index over vectors. For cosine, vectors are L2-normalized in
// place before they are stored.
func New(metric domain.Metric, vectors [][]float32, opts ...Option) (*Index, error) {
	if !metric.IsValid() {
		return nil, fmt.Errorf("%w: unknown metric %q", domain.ErrConfig, metric)
	}

	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
		if dim == 0 {
			return nil, fmt.Errorf("%w: empty vector at row 0", domain.ErrInvalidInput)
		}
	}
	for i := range vectors {
		if len(vectors[i]) != dim {
			return nil, fmt.Errorf("%w: inconsistent vector dims %d vs %d at row %d",
				domain.ErrInvalidInput, len(vectors[i]), dim, i)
		}
	}

	idx := &Index{
		metric: metric,
		dim:    dim,
		vecs:   vectors,
		mags:   make([]float32, len(vectors)),
	}
	for _, opt := range opts {
		opt(idx)
	}
	for i := range vectors {
		if metric == domain.MetricCosine {
			NormalizeL2(vectors[i])
		}
		idx.mags[i] = search.Float32s(vectors[i]).Magnitude()
	}
	return idx, nil
}

// NormalizeL2 scales v to unit length in place. Zero vectors are left as is.
func NormalizeL2(v []float32) {
	m := search.Float32s(v).Magnitude()
	if m == 0 || math.IsNaN(float64(m)) {
		return
	}
	for i := range v {
		v[i] /= m
	}
}

// BuildID returns the build the index belongs to.
func (x *Index) BuildID() string { return x.buildID }

// Metric returns the metric the index was built with.
func (x *Index) Metric() domain.Metric { return x.metric }

// Dimension returns the vector width, 0 for an empty index.
func (x *Index) Dimension() int { return x.dim }

// Len returns the number of vectors.
func (x *Index) Len() int { return len(x.vecs) }

// Search returns exactly k hits. Cosine hits carry the inner product of the
// query with each stored unit vector, highest first. L2 hits carry the
// squared euclidean distance, lowest first. When k exceeds the index size the
// tail is padded with VectorID -1.
func (x *Index) Search(query []float32, k int) ([]driven.IndexHit, error) {
	if k <= 0 {
		return []driven.IndexHit{}, nil
	}
	if len(x.vecs) > 0 && len(query) != x.dim {
		return nil, fmt.Errorf("%w: query dim %d != index dim %d", domain.ErrInvalidInput, len(query), x.dim)
	}

	hits := make([]driven.IndexHit, len(x.vecs))
	q := search.Float32s(query)
	qm := q.Magnitude()
	for i, v := range x.vecs {
		hits[i] = driven.IndexHit{VectorID: i, Score: x.score(q, qm, v, x.mags[i])}
	}

	if x.metric == domain.MetricCosine {
		sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	} else {
		sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score < hits[b].Score })
	}

	if k < len(hits) {
		return hits[:k], nil
	}
	for len(hits) < k {
		hits = append(hits, driven.IndexHit{VectorID: -1, Score: x.emptyScore()})
	}
	return hits, nil
}

func (x *Index) score(q search.Float32s, qm float32, v []float32, vm float32) float32 {
	if x.metric == domain.MetricL2 {
		d := q.EuclideanDistance(v)
		return d * d
	}
	if qm == 0 || vm == 0 {
		return 0
	}
	// The query may not be unit length, so scale back to the inner product.
	s := (1 - q.CosineDistance(v)) * qm * vm
	if math.IsNaN(float64(s)) {
		return 0
	}
	return s
}

func (x *Index) emptyScore() float32 {
	if x.metric == domain.MetricL2 {
		return float32(math.MaxFloat32)
	}
	return float32(-math.MaxFloat32)
}

// MarshalBinary encodes the index blob.
func (x *Index) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(24 + len(x.buildID) + len(x.metric) + 4*x.dim*len(x.vecs))

	buf.Write(magic[:])
	putU32(&buf, formatVersion)
	putU32(&buf, uint32(len(x.buildID)))
	buf.WriteString(x.buildID)
	putU32(&buf, uint32(len(x.metric)))
	buf.WriteString(string(x.metric))
	putU32(&buf, uint32(x.dim))
	putU32(&buf, uint32(len(x.vecs)))

	b := make([]byte, 4)
	for _, v := range x.vecs {
		for _, f := range v {
			binary.LittleEndian.PutUint32(b, math.Float32bits(f))
			buf.Write(b)
		}
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes an index blob produced by MarshalBinary.
func Unmarshal(data []byte) (*Index, error) {
	r := &reader{data: data}

	head := r.bytes(4)
	if r.err != nil || !bytes.Equal(head, magic[:]) {
		return nil, errors.New("flatindex: not an index file")
	}
	if v := r.u32(); r.err == nil && v != formatVersion {
		return nil, fmt.Errorf("flatindex: unsupported format version %d", v)
	}
	buildID := string(r.bytes(int(r.u32())))
	metric := domain.Metric(r.bytes(int(r.u32())))
	dim := int(r.u32())
	n := int(r.u32())
	if r.err != nil {
		return nil, r.err
	}
	if !metric.IsValid() {
		return nil, fmt.Errorf("flatindex: unknown metric %q", metric)
	}
	if want := n * dim * 4; len(data)-r.off != want {
		return nil, fmt.Errorf("flatindex: truncated vectors: have %d bytes, want %d", len(data)-r.off, want)
	}

	vecs := make([][]float32, n)
	for i := range vecs {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(r.u32())
		}
		vecs[i] = vec
	}

	idx := &Index{buildID: buildID, metric: metric, dim: dim, vecs: vecs, mags: make([]float32, n)}
	for i := range vecs {
		idx.mags[i] = search.Float32s(vecs[i]).Magnitude()
	}
	return idx, nil
}

func putU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = errors.New("flatindex: truncated header")
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}
