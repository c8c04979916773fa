package dataset

import (
	"fmt"
	"sort"
	"testing"

	"github.com/ricesearch/disaster-response/internal/pkg/errors"
)

func makeDataset(n int) *Dataset {
	ds := &Dataset{Labels: []string{"water"}}
	for i := 0; i < n; i++ {
		ds.Rows = append(ds.Rows, Row{ID: int64(i), Message: fmt.Sprintf("msg %d", i), Values: []int{i % 2}})
	}
	return ds
}

func TestSplit_Sizes(t *testing.T) {
	tests := []struct {
		n         int
		testSize  float64
		wantTrain int
		wantTest  int
	}{
		{10, 0.2, 8, 2},
		{11, 0.2, 8, 3}, // ceil(2.2) = 3
		{5, 0.5, 2, 3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d/test=%v", tt.n, tt.testSize), func(t *testing.T) {
			train, test, err := makeDataset(tt.n).Split(tt.testSize, 1)
			if err != nil {
				t.Fatalf("Split() error = %v", err)
			}
			if train.Len() != tt.wantTrain || test.Len() != tt.wantTest {
				t.Errorf("sizes = %d/%d, want %d/%d", train.Len(), test.Len(), tt.wantTrain, tt.wantTest)
			}
		})
	}
}

func TestSplit_PartitionAndDeterminism(t *testing.T) {
	ds := makeDataset(50)

	train1, test1, err := ds.Split(0.2, 42)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	train2, test2, _ := ds.Split(0.2, 42)

	for i := range test1.Rows {
		if test1.Rows[i].ID != test2.Rows[i].ID {
			t.Fatal("same seed produced different test splits")
		}
	}
	for i := range train1.Rows {
		if train1.Rows[i].ID != train2.Rows[i].ID {
			t.Fatal("same seed produced different train splits")
		}
	}

	var ids []int
	for _, r := range append(append([]Row{}, train1.Rows...), test1.Rows...) {
		ids = append(ids, int(r.ID))
	}
	sort.Ints(ids)
	for i, id := range ids {
		if id != i {
			t.Fatalf("split is not a partition of the input: %v", ids)
		}
	}

	_, test3, _ := ds.Split(0.2, 43)
	same := true
	for i := range test1.Rows {
		if test1.Rows[i].ID != test3.Rows[i].ID {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical test splits")
	}
}

func TestSplit_Errors(t *testing.T) {
	if _, _, err := makeDataset(10).Split(0, 1); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, _, err := makeDataset(1).Split(0.2, 1); !errors.IsEmptyInput(err) {
		t.Errorf("expected empty input error, got %v", err)
	}
}
