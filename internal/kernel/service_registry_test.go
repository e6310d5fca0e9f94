package kernel

import (
	"errors"
	"slices"
	"testing"

	"subroll/pkg/subroll"
)

func TestServiceRegistryRegisterAndResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		register    map[string]any
		resolveName string
		want        any
		wantErr     error
	}{
		{
			name:        "registered service resolves",
			register:    map[string]any{subroll.ServiceCommandPrefix: "prefix-store"},
			resolveName: subroll.ServiceCommandPrefix,
			want:        "prefix-store",
		},
		{
			name:        "surrounding whitespace ignored",
			register:    map[string]any{" feeds.cache ": 42},
			resolveName: "feeds.cache",
			want:        42,
		},
		{
			name:        "missing service",
			register:    map[string]any{"feeds.cache": 42},
			resolveName: "feeds.registry",
			wantErr:     subroll.ErrServiceNotFound,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			registry := NewServiceRegistry()
			for name, service := range testCase.register {
				if err := registry.Register(name, service); err != nil {
					t.Fatalf("register %q failed: %v", name, err)
				}
			}

			resolved, err := registry.Resolve(testCase.resolveName)
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					t.Fatalf("resolve error = %v, want %v", err, testCase.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if resolved != testCase.want {
				t.Fatalf("resolved = %v, want %v", resolved, testCase.want)
			}
		})
	}
}

func TestServiceRegistryRejectsInvalidRegistrations(t *testing.T) {
	t.Parallel()

	var nilPointer *PrefixStore
	var nilFunc func()
	tests := []struct {
		name    string
		key     string
		service any
		wantErr error
	}{
		{name: "empty name", key: "  ", service: "value"},
		{name: "nil service", key: "svc", service: nil},
		{name: "typed nil pointer", key: "svc", service: nilPointer},
		{name: "nil func", key: "svc", service: nilFunc},
		{name: "duplicate name", key: subroll.ServiceLogger, service: "again", wantErr: subroll.ErrServiceAlreadyRegistered},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			registry := NewServiceRegistry()
			if err := registry.Register(subroll.ServiceLogger, "logger"); err != nil {
				t.Fatalf("seed register failed: %v", err)
			}

			err := registry.Register(testCase.key, testCase.service)
			if err == nil {
				t.Fatal("expected register error")
			}
			if testCase.wantErr != nil && !errors.Is(err, testCase.wantErr) {
				t.Fatalf("register error = %v, want %v", err, testCase.wantErr)
			}
			if names := registry.Names(); !slices.Equal(names, []string{subroll.ServiceLogger}) {
				t.Fatalf("names = %v, want only the seeded service", names)
			}
		})
	}
}

func TestServiceRegistryNamesKeepRegistrationOrder(t *testing.T) {
	t.Parallel()

	registry := NewServiceRegistry()
	for _, name := range []string{subroll.ServiceSinkDispatcher, subroll.ServiceLogger, subroll.ServiceModeratorChecker} {
		if err := registry.Register(name, name); err != nil {
			t.Fatalf("register %s failed: %v", name, err)
		}
	}

	names := registry.Names()
	want := []string{subroll.ServiceSinkDispatcher, subroll.ServiceLogger, subroll.ServiceModeratorChecker}
	if !slices.Equal(names, want) {
		t.Fatalf("names = %v, want %v", names, want)
	}

	names[0] = "mutated"
	if registry.Names()[0] != subroll.ServiceSinkDispatcher {
		t.Fatal("Names returned internal slice")
	}
}
