package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ricesearch/disaster-response/internal/pkg/errors"
	"github.com/ricesearch/disaster-response/internal/pkg/hash"
)

// LabelPolicy decides what happens to label values outside {0,1}.
type LabelPolicy string

const (
	// PolicyStrict rejects any value other than 0 or 1.
	PolicyStrict LabelPolicy = "strict"
	// PolicyClamp maps values greater than 1 to 1.
	PolicyClamp LabelPolicy = "clamp"
)

// CleanOptions configures Clean.
type CleanOptions struct {
	Policy LabelPolicy
}

// CleanStats reports what Clean did to its input.
type CleanStats struct {
	Messages   int
	Categories int
	Joined     int
	Duplicates int
	Clamped    int
}

// Clean joins the two raw tables on id, expands the encoded categories into
// binary label columns and drops exact duplicate rows.
func Clean(messages []RawMessage, categories []RawCategoryRecord, opts CleanOptions) (*Dataset, CleanStats, error) {
	stats := CleanStats{
		Messages:   len(messages),
		Categories: len(categories),
	}

	if opts.Policy == "" {
		opts.Policy = PolicyStrict
	}
	if opts.Policy != PolicyStrict && opts.Policy != PolicyClamp {
		return nil, stats, errors.ValidationError(fmt.Sprintf("unknown label policy %q", opts.Policy))
	}

	if len(categories) == 0 {
		return nil, stats, errors.SchemaError("categories table is empty")
	}

	labels, err := ParseSchema(categories[0].Encoded)
	if err != nil {
		return nil, stats, err
	}

	byID := make(map[int64][]int, len(categories))
	for i, c := range categories {
		byID[c.ID] = append(byID[c.ID], i)
	}

	// Decode each category record once, even if it joins many messages.
	decoded := make(map[int][]int)

	var rows []Row
	for _, m := range messages {
		for _, ci := range byID[m.ID] {
			values, ok := decoded[ci]
			if !ok {
				var clamped int
				values, clamped, err = decodeValues(categories[ci], labels, opts.Policy)
				if err != nil {
					return nil, stats, err
				}
				stats.Clamped += clamped
				decoded[ci] = values
			}
			rows = append(rows, Row{ID: m.ID, Message: m.Text, Values: values})
		}
	}

	stats.Joined = len(rows)
	if len(rows) == 0 {
		return nil, stats, errors.SchemaError("joining messages and categories on id produced no rows")
	}

	ds := &Dataset{Labels: labels, Rows: rows}
	stats.Duplicates = ds.Dedup()

	return ds, stats, nil
}

// ParseSchema derives the ordered label names from one encoded record by
// stripping the trailing "-<digit>" suffix of every segment.
func ParseSchema(encoded string) ([]string, error) {
	if strings.TrimSpace(encoded) == "" {
		return nil, errors.SchemaError("first category record is empty")
	}

	segments := strings.Split(encoded, ";")
	labels := make([]string, len(segments))
	seen := make(map[string]bool, len(segments))

	for i, seg := range segments {
		name, _, err := splitSegment(seg)
		if err != nil {
			return nil, errors.SchemaError(fmt.Sprintf("first category record: %v", err))
		}
		if seen[name] {
			return nil, errors.SchemaError(fmt.Sprintf("first category record: duplicate label %q", name))
		}
		seen[name] = true
		labels[i] = name
	}

	return labels, nil
}

// splitSegment splits "name-d" into its name and trailing character.
func splitSegment(seg string) (string, byte, error) {
	if len(seg) < 3 || seg[len(seg)-2] != '-' {
		return "", 0, fmt.Errorf("segment %q is not of the form name-<digit>", seg)
	}
	return seg[:len(seg)-2], seg[len(seg)-1], nil
}

func decodeValues(rec RawCategoryRecord, labels []string, policy LabelPolicy) ([]int, int, error) {
	segments := strings.Split(rec.Encoded, ";")
	if len(segments) != len(labels) {
		return nil, 0, errors.SchemaError(fmt.Sprintf("record %d has %d segments, schema has %d", rec.ID, len(segments), len(labels))).
			WithDetail("id", strconv.FormatInt(rec.ID, 10))
	}

	values := make([]int, len(labels))
	clamped := 0

	for i, seg := range segments {
		name, last, err := splitSegment(seg)
		if err != nil {
			return nil, 0, errors.SchemaError(fmt.Sprintf("record %d: %v", rec.ID, err)).
				WithDetail("id", strconv.FormatInt(rec.ID, 10))
		}
		if name != labels[i] {
			return nil, 0, errors.SchemaError(fmt.Sprintf("record %d: segment %d is %q, schema expects %q", rec.ID, i, name, labels[i])).
				WithDetail("id", strconv.FormatInt(rec.ID, 10))
		}

		v, err := strconv.Atoi(string(last))
		if err != nil {
			return nil, 0, errors.SchemaError(fmt.Sprintf("record %d: label %q has non-numeric value %q", rec.ID, name, last)).
				WithDetail("id", strconv.FormatInt(rec.ID, 10))
		}

		if v > 1 {
			if policy != PolicyClamp {
				return nil, 0, errors.SchemaError(fmt.Sprintf("record %d: label %q has non-binary value %d", rec.ID, name, v)).
					WithDetail("id", strconv.FormatInt(rec.ID, 10))
			}
			v = 1
			clamped++
		}
		values[i] = v
	}

	return values, clamped, nil
}

// Dedup removes exact duplicate rows in place, keeping the first occurrence
// and the original order. It returns the number of rows removed.
func (d *Dataset) Dedup() int {
	seen := make(map[string]struct{}, len(d.Rows))
	kept := d.Rows[:0]

	for _, r := range d.Rows {
		key := hash.RowKey(r.ID, r.Message, r.Values)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, r)
	}

	removed := len(d.Rows) - len(kept)
	d.Rows = kept
	return removed
}

// Validate checks the table invariants: a non-empty schema, one value per
// label in every row, and values restricted to {0,1}.
func (d *Dataset) Validate() error {
	if len(d.Labels) == 0 {
		return errors.SchemaError("dataset has no label columns")
	}
	for _, r := range d.Rows {
		if len(r.Values) != len(d.Labels) {
			return errors.SchemaError(fmt.Sprintf("row %d has %d label values, schema has %d", r.ID, len(r.Values), len(d.Labels)))
		}
		for j, v := range r.Values {
			if v != 0 && v != 1 {
				return errors.SchemaError(fmt.Sprintf("row %d: label %q has non-binary value %d", r.ID, d.Labels[j], v))
			}
		}
	}
	return nil
}
