package snmpval

// Table mirrors the original's val_table (SPEC_FULL.md §10
// supplemented feature): a helper that registers one row of values
// per table index, all sharing a common column OID prefix, rather
// than requiring callers to hand-compute each cell's OID.
//
// A table with columns [c1, c2] and index 1..N registers OIDs
// prefix++[c1, i] and prefix++[c2, i] for each row i.
type Table struct {
	registry *Registry
	prefix   OID
	columns  []uint32
}

// NewTable binds a Table to registry, a shared prefix, and the
// per-row column sub-identifiers.
func NewTable(registry *Registry, prefix OID, columns []uint32) *Table {
	cols := make([]uint32, len(columns))
	copy(cols, columns)
	return &Table{registry: registry, prefix: prefix, columns: cols}
}

// RegisterRow registers one value per column at index idx. build is
// called once per column with the column's full OID and must return
// the Value to register at that OID, or nil to leave that cell
// unregistered.
func (t *Table) RegisterRow(idx uint32, build func(col uint32, oid OID) Value) {
	for _, col := range t.columns {
		oid := t.prefix.Append(col, idx)
		v := build(col, oid)
		if v != nil {
			t.registry.Register(v)
		}
	}
}
