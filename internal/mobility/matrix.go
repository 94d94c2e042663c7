// Package mobility builds the symmetric county-to-county mobility matrix
// from aggregated commuting flows.
package mobility

import (
	"bufio"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spatial-prep/internal/commute"
)

// ErrMalformedMatrix marks matrix text that is not a square grid of numbers.
var ErrMalformedMatrix = eris.New("mobility: malformed matrix")

// Matrix is a dense square matrix indexed by county identifier. Row and
// column i both refer to IDs[i].
type Matrix struct {
	IDs  []int64
	Data []float64 // row-major, len(IDs)*len(IDs)
}

// New returns a zero matrix over ids.
func New(ids []int64) *Matrix {
	n := len(ids)
	return &Matrix{IDs: append([]int64(nil), ids...), Data: make([]float64, n*n)}
}

// Size returns the number of rows (and columns).
func (m *Matrix) Size() int { return len(m.IDs) }

// At returns the value at row i, column j.
func (m *Matrix) At(i, j int) float64 { return m.Data[i*len(m.IDs)+j] }

// Set stores v at row i, column j.
func (m *Matrix) Set(i, j int, v float64) { m.Data[i*len(m.IDs)+j] = v }

// Index returns the position of id, or -1.
func (m *Matrix) Index(id int64) int {
	i := sort.Search(len(m.IDs), func(k int) bool { return m.IDs[k] >= id })
	if i < len(m.IDs) && m.IDs[i] == id {
		return i
	}
	return -1
}

// Pivot lays pair totals out as a matrix whose index is every county that
// appears as an origin or destination, sorted ascending. Missing pairs are 0.
func Pivot(pairs []commute.PairFlow) *Matrix {
	set := make(map[int64]struct{})
	for _, p := range pairs {
		set[p.Origin] = struct{}{}
		set[p.Destination] = struct{}{}
	}
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	m := New(ids)
	for _, p := range pairs {
		i, j := m.Index(p.Origin), m.Index(p.Destination)
		m.Set(i, j, m.At(i, j)+p.Flow)
	}
	return m
}

// Symmetrize replaces m with m + mᵀ.
func (m *Matrix) Symmetrize() {
	n := m.Size()
	for i := 0; i < n; i++ {
		m.Set(i, i, 2*m.At(i, i))
		for j := i + 1; j < n; j++ {
			s := m.At(i, j) + m.At(j, i)
			m.Set(i, j, s)
			m.Set(j, i, s)
		}
	}
}

// ZeroDiagonal clears self-flows.
func (m *Matrix) ZeroDiagonal() {
	for i := range m.IDs {
		m.Set(i, i, 0)
	}
}

// Build pivots, symmetrizes and zeroes the diagonal of pair totals.
func Build(pairs []commute.PairFlow) *Matrix {
	m := Pivot(pairs)
	m.Symmetrize()
	m.ZeroDiagonal()
	return m
}

// Reindex returns a copy of m laid out over ids. Counties in ids that m does
// not know get zero rows and columns. Non-zero entries touching a county m
// knows but ids lacks are dropped and counted.
func (m *Matrix) Reindex(ids []int64) (*Matrix, int) {
	out := New(ids)
	pos := make([]int, m.Size())
	for i, id := range m.IDs {
		pos[i] = out.Index(id)
	}

	dropped := 0
	for i := range m.IDs {
		for j := range m.IDs {
			v := m.At(i, j)
			if v == 0 {
				continue
			}
			if pos[i] < 0 || pos[j] < 0 {
				dropped++
				continue
			}
			out.Set(pos[i], pos[j], v)
		}
	}
	return out, dropped
}

// IsSymmetric reports whether m equals its transpose with a zero diagonal.
func (m *Matrix) IsSymmetric() bool {
	n := m.Size()
	for i := 0; i < n; i++ {
		if m.At(i, i) != 0 {
			return false
		}
		for j := i + 1; j < n; j++ {
			if m.At(i, j) != m.At(j, i) {
				return false
			}
		}
	}
	return true
}

// UpperTriangle lists the non-zero entries above the diagonal.
func (m *Matrix) UpperTriangle() []commute.PairFlow {
	var out []commute.PairFlow
	n := m.Size()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if v := m.At(i, j); v != 0 {
				out = append(out, commute.PairFlow{Origin: m.IDs[i], Destination: m.IDs[j], Flow: v})
			}
		}
	}
	return out
}

// WriteText writes one line per row, values in scientific notation with 18
// fractional digits separated by single spaces.
func (m *Matrix) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	n := m.Size()
	buf := make([]byte, 0, 32)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if j > 0 {
				if err := bw.WriteByte(' '); err != nil {
					return eris.Wrap(err, "mobility: write matrix")
				}
			}
			buf = strconv.AppendFloat(buf[:0], m.At(i, j), 'e', 18, 64)
			if _, err := bw.Write(buf); err != nil {
				return eris.Wrap(err, "mobility: write matrix")
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return eris.Wrap(err, "mobility: write matrix")
		}
	}
	return eris.Wrap(bw.Flush(), "mobility: flush matrix")
}

// ReadText parses a matrix written by WriteText and assigns it ids.
func ReadText(r io.Reader, ids []int64) (*Matrix, error) {
	m := New(ids)
	n := len(ids)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), math.MaxInt32)
	row := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if row >= n {
			return nil, eris.Wrapf(ErrMalformedMatrix, "more than %d rows", n)
		}
		fields := strings.Fields(line)
		if len(fields) != n {
			return nil, eris.Wrapf(ErrMalformedMatrix, "row %d has %d values, want %d", row+1, len(fields), n)
		}
		for j, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, eris.Wrapf(ErrMalformedMatrix, "row %d col %d: %q", row+1, j+1, f)
			}
			m.Set(row, j, v)
		}
		row++
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "mobility: read matrix")
	}
	if row != n {
		return nil, eris.Wrapf(ErrMalformedMatrix, "%d rows, want %d", row, n)
	}
	return m, nil
}
