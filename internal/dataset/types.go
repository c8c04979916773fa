// Package dataset holds the typed table model for labeled disaster-response
// messages and the cleaning step that produces it from the raw tables.
package dataset

// RawMessage is one row of the messages table.
type RawMessage struct {
	ID   int64
	Text string
}

// RawCategoryRecord is one row of the categories table. Encoded has the
// form "name1-0;name2-1;...;nameN-0".
type RawCategoryRecord struct {
	ID      int64
	Encoded string
}

// Row is a cleaned message with one binary value per label column.
type Row struct {
	ID      int64
	Message string
	Values  []int
}

// Dataset is the cleaned table: a message column plus N binary label
// columns sharing one schema.
type Dataset struct {
	Labels []string
	Rows   []Row
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// Messages returns the message column.
func (d *Dataset) Messages() []string {
	out := make([]string, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = r.Message
	}
	return out
}

// LabelMatrix returns the label columns as a docs x labels matrix. Rows
// share storage with the dataset and must not be modified.
func (d *Dataset) LabelMatrix() [][]int {
	out := make([][]int, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = r.Values
	}
	return out
}

// Subset returns a dataset holding the rows at idx, in that order.
func (d *Dataset) Subset(idx []int) *Dataset {
	rows := make([]Row, len(idx))
	for i, j := range idx {
		rows[i] = d.Rows[j]
	}
	return &Dataset{Labels: d.Labels, Rows: rows}
}

// PositiveCounts returns the number of rows with value 1 for each label.
func (d *Dataset) PositiveCounts() []int {
	counts := make([]int, len(d.Labels))
	for _, r := range d.Rows {
		for j, v := range r.Values {
			if v == 1 {
				counts[j]++
			}
		}
	}
	return counts
}
