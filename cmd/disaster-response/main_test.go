package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/ricesearch/disaster-response/internal/bus"
)

func TestProcessCmd_LabelPolicyHelp(t *testing.T) {
	long := processCmd().Long
	for _, want := range []string{"strict", "related-2", "--label-policy clamp"} {
		if !strings.Contains(long, want) {
			t.Errorf("process help missing %q", want)
		}
	}
}

func TestEventsCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	t.Setenv("DR_BUS_TYPE", "memory")
	t.Setenv("DR_EVENT_LOG_PATH", path)

	l, err := bus.NewEventLogger(path, true)
	if err != nil {
		t.Fatalf("NewEventLogger() error = %v", err)
	}
	l.Log(bus.TopicModelTrained, bus.NewEvent(bus.TopicModelTrained, "train", "run-a", bus.ModelTrained{ModelDir: "m"}))
	l.Log(bus.TopicModelEvaluated, bus.NewEvent(bus.TopicModelEvaluated, "train", "run-a", bus.ModelEvaluated{TestRows: 2}))
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
	}{
		{"list recent", []string{"events", "--limit", "1"}},
		{"list run", []string{"events", "run-a"}},
		{"replay run", []string{"events", "run-a", "--replay"}},
		{"replay recent", []string{"events", "--replay"}},
		{"unknown run", []string{"events", "run-z"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCmd()
			root.SetArgs(tt.args)
			if err := root.Execute(); err != nil {
				t.Errorf("Execute(%v) error = %v", tt.args, err)
			}
		})
	}

	root := newRootCmd()
	root.SetArgs([]string{"events", "a", "b"})
	if err := root.Execute(); err == nil {
		t.Error("events with two run ids should fail")
	}
}
