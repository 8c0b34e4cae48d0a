package constraint

// RowCache is the flat row storage filled during constraint preparation and
// consumed by the solver iterations. ConNumRows records, per prepared
// constraint in emission order, how many rows belong to it; it drives the
// write-back of accumulated impulses after the iterations.
type RowCache struct {
	Rows       []Row
	ConNumRows []int
}

// Clear empties the cache, keeping capacity
func (c *RowCache) Clear() {
	c.Rows = c.Rows[:0]
	c.ConNumRows = c.ConNumRows[:0]
}

// AddRow appends an empty row and returns it
func (c *RowCache) AddRow() *Row {
	c.Rows = append(c.Rows, Row{})
	return &c.Rows[len(c.Rows)-1]
}
