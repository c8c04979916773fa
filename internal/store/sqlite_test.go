package store

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ricesearch/disaster-response/internal/dataset"
	"github.com/ricesearch/disaster-response/internal/pkg/errors"
)

func openTestStore(t *testing.T) *DatasetStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "disaster.db"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleDataset() *dataset.Dataset {
	return &dataset.Dataset{
		Labels: []string{"related", "aid-related", "water"},
		Rows: []dataset.Row{
			{ID: 2, Message: "Weather update", Values: []int{1, 0, 0}},
			{ID: 7, Message: "We need \"clean\" water", Values: []int{1, 1, 1}},
			{ID: 3, Message: "nothing", Values: []int{0, 0, 0}},
		},
	}
}

func TestDatasetStore_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ds := sampleDataset()

	if err := s.Save(ctx, DefaultTable, ds); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := s.Load(ctx, DefaultTable)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(loaded, ds) {
		t.Errorf("Load() = %+v, want %+v", loaded, ds)
	}
}

func TestDatasetStore_SaveReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "t", sampleDataset()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	small := &dataset.Dataset{
		Labels: []string{"food"},
		Rows:   []dataset.Row{{ID: 1, Message: "bread", Values: []int{1}}},
	}
	if err := s.Save(ctx, "t", small); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	loaded, err := s.Load(ctx, "t")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(loaded, small) {
		t.Errorf("Load() = %+v, want %+v", loaded, small)
	}
}

func TestDatasetStore_Errors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Load(ctx, "missing"); !errors.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
	if err := s.Save(ctx, "", sampleDataset()); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}

	reserved := &dataset.Dataset{
		Labels: []string{"message"},
		Rows:   []dataset.Row{{ID: 1, Message: "a", Values: []int{0}}},
	}
	if err := s.Save(ctx, "t", reserved); !errors.IsSchema(err) {
		t.Errorf("expected schema error, got %v", err)
	}

	bad := &dataset.Dataset{
		Labels: []string{"water"},
		Rows:   []dataset.Row{{ID: 1, Message: "a", Values: []int{2}}},
	}
	if err := s.Save(ctx, "t", bad); !errors.IsSchema(err) {
		t.Errorf("expected schema error, got %v", err)
	}

	empty := &dataset.Dataset{Labels: []string{"water"}}
	if err := s.Save(ctx, "empty", empty); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := s.Load(ctx, "empty"); !errors.IsEmptyInput(err) {
		t.Errorf("expected empty input error, got %v", err)
	}
}

func TestDatasetStore_HasTable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.HasTable(ctx, DefaultTable)
	if err != nil || ok {
		t.Fatalf("HasTable() = %v, %v before save", ok, err)
	}
	if err := s.Save(ctx, DefaultTable, sampleDataset()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if ok, _ := s.HasTable(ctx, DefaultTable); !ok {
		t.Error("HasTable() = false after save")
	}
}
