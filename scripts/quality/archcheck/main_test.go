package main

import (
	"reflect"
	"testing"
)

func TestViolationReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		importer string
		imported string
		want     string
	}{
		{
			name:     "protocol importing kernel",
			importer: "subroll/pkg/subroll",
			imported: "subroll/internal/kernel",
			want:     "pkg/subroll must not import internal/*",
		},
		{
			name:     "kernel importing telegram driver",
			importer: "subroll/internal/kernel",
			imported: "subroll/internal/driver/telegram",
			want:     "internal/kernel must not import internal/driver/*",
		},
		{
			name:     "driver importing kernel",
			importer: "subroll/internal/driver",
			imported: "subroll/internal/kernel",
			want:     "internal/driver/* must not import internal/kernel",
		},
		{
			name:     "feature module importing driver",
			importer: "subroll/modules/feeds",
			imported: "subroll/internal/driver",
			want:     "modules/* must not import internal/*",
		},
		{
			name:     "internal importing feature module",
			importer: "subroll/internal/telemetry",
			imported: "subroll/modules/feeds",
			want:     "internal/* must not import modules/*",
		},
		{
			name:     "feature module importing sibling module",
			importer: "subroll/modules/help [subroll/modules/help.test]",
			imported: "subroll/modules/feeds",
			want:     "modules/* must not import other feature modules",
		},
		{
			name:     "feature module importing protocol",
			importer: "subroll/modules/feeds",
			imported: "subroll/pkg/subroll",
		},
		{
			name:     "entry point wires everything",
			importer: "subroll/cmd/bot",
			imported: "subroll/modules/feeds",
		},
		{
			name:     "external test package of the same module",
			importer: "subroll/modules/feeds_test [subroll/modules/feeds.test]",
			imported: "subroll/modules/feeds",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if got := violationReason(testCase.importer, testCase.imported); got != testCase.want {
				t.Fatalf("reason = %q, want %q", got, testCase.want)
			}
		})
	}
}

func TestCollectViolationsDeduplicatesAndSorts(t *testing.T) {
	t.Parallel()

	packages := []listedPackage{
		{
			ImportPath:  "subroll/modules/help",
			Imports:     []string{"subroll/pkg/subroll", "subroll/internal/kernel"},
			TestImports: []string{"subroll/internal/kernel"},
		},
		{
			ImportPath: "subroll/pkg/subroll",
			Imports:    []string{"subroll/internal/driver"},
		},
	}

	want := []string{
		"subroll/modules/help -> subroll/internal/kernel (modules/* must not import internal/*)",
		"subroll/pkg/subroll -> subroll/internal/driver (pkg/subroll must not import internal/*)",
	}
	if got := collectViolations(packages); !reflect.DeepEqual(got, want) {
		t.Fatalf("violations = %v, want %v", got, want)
	}
}
