package relpos

import (
	"cmp"
	"slices"

	"github.com/pkg/errors"
)

// NumPrefixClasses is the number of extra classes reserved for a prefix
// token: token-to-prefix, prefix-to-token and prefix-to-prefix.
const NumPrefixClasses = 3

// offset is a (row, col) pair, used both for coordinates and for their
// differences.
type offset struct {
	row, col int
}

func compareOffsets(a, b offset) int {
	if c := cmp.Compare(a.row, b.row); c != 0 {
		return c
	}
	return cmp.Compare(a.col, b.col)
}

// IndexTable maps every (query position, key position) pair to a relative
// position class id in [0, VocabSize).
//
// Data is row-major with shape (Rows, Cols). Tables are shared between
// readers and must not be modified after construction.
type IndexTable struct {
	Rows      int
	Cols      int
	VocabSize int
	Data      []int
}

// At returns the class id of the (query, key) pair.
func (t *IndexTable) At(query, key int) int {
	return t.Data[query*t.Cols+key]
}

// Shape returns (Rows, Cols).
func (t *IndexTable) Shape() []int {
	return []int{t.Rows, t.Cols}
}

// Distinct returns the number of distinct class ids present in the table.
func (t *IndexTable) Distinct() int {
	seen := make(map[int]struct{}, t.VocabSize)
	for _, id := range t.Data {
		seen[id] = struct{}{}
	}
	return len(seen)
}

// RelativePositionIndex builds the relative position index table for a
// query window q and key window k. A zero k means the key window equals q.
//
// Every pairwise coordinate difference q_coord - k_coord is replaced by the
// position of that difference in the sorted set of distinct differences, so
// identical offsets always share one id. For equal windows the ids enumerate
// the dense (2h-1, 2w-1) offset grid in row-major order, which is the layout
// produced by LogCoords.
//
// With classToken the table gains one leading row and column: row 0 holds
// VocabSize-3 (query is the prefix token), column 0 holds VocabSize-2 (key is
// the prefix token) and cell (0, 0) holds VocabSize-1.
//
// Class-token padding is only defined for equal query and key windows; other
// combinations return ErrUnsupportedConfig.
func RelativePositionIndex(q, k Window, classToken bool) (*IndexTable, error) {
	if err := q.Validate(); err != nil {
		return nil, errors.WithMessage(err, "query window")
	}
	if k.IsZero() {
		k = q
	} else if err := k.Validate(); err != nil {
		return nil, errors.WithMessage(err, "key window")
	}
	if classToken && k != q {
		return nil, errors.Wrapf(ErrUnsupportedConfig,
			"class token with query window %v and key window %v", q, k)
	}

	qCoords, kCoords := q.coords(), k.coords()
	diffs := make([]offset, 0, len(qCoords)*len(kCoords))
	seen := make(map[offset]struct{})
	for _, a := range qCoords {
		for _, b := range kCoords {
			d := offset{a.row - b.row, a.col - b.col}
			diffs = append(diffs, d)
			seen[d] = struct{}{}
		}
	}

	distinct := make([]offset, 0, len(seen))
	for d := range seen {
		distinct = append(distinct, d)
	}
	slices.SortFunc(distinct, compareOffsets)
	ids := make(map[offset]int, len(distinct))
	for i, d := range distinct {
		ids[d] = i
	}

	if !classToken {
		table := &IndexTable{
			Rows:      len(qCoords),
			Cols:      len(kCoords),
			VocabSize: len(distinct),
			Data:      make([]int, len(diffs)),
		}
		for i, d := range diffs {
			table.Data[i] = ids[d]
		}
		return table, nil
	}

	vocab := len(distinct) + NumPrefixClasses
	rows, cols := len(qCoords)+1, len(kCoords)+1
	table := &IndexTable{
		Rows:      rows,
		Cols:      cols,
		VocabSize: vocab,
		Data:      make([]int, rows*cols),
	}
	for i := range qCoords {
		for j := range kCoords {
			table.Data[(i+1)*cols+j+1] = ids[diffs[i*len(kCoords)+j]]
		}
	}

	// Order matters: the corner ends up as prefix-to-prefix.
	for j := 0; j < cols; j++ {
		table.Data[j] = vocab - 3
	}
	for i := 0; i < rows; i++ {
		table.Data[i*cols] = vocab - 2
	}
	table.Data[0] = vocab - 1

	return table, nil
}
