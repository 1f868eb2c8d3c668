package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/banshee-data/focalmetrics/internal/engine"
)

func engineErr(kind engine.Kind) error {
	return &engine.Error{Kind: kind, Offset: -1, Err: errors.New("failed")}
}

func TestFlagDefaults(t *testing.T) {
	if *metricName != "edge_density" {
		t.Errorf("expected -metric default edge_density, got %q", *metricName)
	}
	if *shape != "circle" {
		t.Errorf("expected -shape default circle, got %q", *shape)
	}
	if *workers != -1 {
		t.Errorf("expected -workers default -1, got %d", *workers)
	}
	if *tileSize != 0 {
		t.Errorf("expected -tile default 0, got %d", *tileSize)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"configuration", fmt.Errorf("wrapped: %w", engineErr(engine.KindConfiguration)), exitConfig},
		{"io", engineErr(engine.KindIO), exitIO},
		{"canceled", engineErr(engine.KindCanceled), exitCanceled},
		{"plain", errors.New("boom"), exitIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestRunRejectsBadConfigPath(t *testing.T) {
	old := *configPath
	*configPath = "engine.yaml"
	defer func() { *configPath = old }()

	_, err := run(context.Background())
	if err == nil {
		t.Fatal("expected an error for a non-JSON config")
	}
	if exitCode(err) != exitConfig {
		t.Errorf("expected configuration exit code, got %d (%v)", exitCode(err), err)
	}
}
