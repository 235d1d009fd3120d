package core

import "github.com/signalsfoundry/junctionbox-simulator/model"

// ConstraintIndex answers whether a cell is blocked. It keeps the cells in
// the order they were generated, duplicates included, because density and
// centroid features are computed over that list.
type ConstraintIndex struct {
	cells   []model.Cell
	blocked map[model.Cell]struct{}
}

// NewConstraintIndex builds an index over cells. The slice is copied.
func NewConstraintIndex(cells []model.Cell) *ConstraintIndex {
	idx := &ConstraintIndex{
		cells:   append([]model.Cell(nil), cells...),
		blocked: make(map[model.Cell]struct{}, len(cells)),
	}
	for _, c := range cells {
		idx.blocked[c] = struct{}{}
	}
	return idx
}

// IsBlocked floors p to its cell and reports whether that cell is constrained.
func (idx *ConstraintIndex) IsBlocked(p model.Vec3) bool {
	return idx.IsBlockedCell(model.CellOf(p))
}

// IsBlockedCell reports whether c is constrained.
func (idx *ConstraintIndex) IsBlockedCell(c model.Cell) bool {
	if idx == nil {
		return false
	}
	_, ok := idx.blocked[c]
	return ok
}

// Len returns the number of generated constraints, duplicates included.
func (idx *ConstraintIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.cells)
}

// UniqueLen returns the number of distinct blocked cells.
func (idx *ConstraintIndex) UniqueLen() int {
	if idx == nil {
		return 0
	}
	return len(idx.blocked)
}

// Cells returns a copy of the generated constraint list.
func (idx *ConstraintIndex) Cells() []model.Cell {
	if idx == nil {
		return nil
	}
	return append([]model.Cell(nil), idx.cells...)
}

// Centroid returns the mean lattice position of all constraints.
func (idx *ConstraintIndex) Centroid() model.Vec3 {
	if idx == nil || len(idx.cells) == 0 {
		return model.Vec3{}
	}
	points := make([]model.Vec3, len(idx.cells))
	for i, c := range idx.cells {
		points[i] = c.Center()
	}
	return centroid(points)
}
