// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package container

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// mockExecutor records calls and returns configured responses.
type mockExecutor struct {
	availableBins map[string]bool // binary -> whether LookPath succeeds
	runnableCmds  map[string]bool // "bin arg1 arg2" -> whether RunSilent succeeds
	runPipedFunc  func(name string, args []string, stdin io.Reader, stdout io.Writer) error
}

func (m *mockExecutor) LookPath(file string) (string, error) {
	if m.availableBins[file] {
		return "/usr/bin/" + file, nil
	}
	return "", errors.New("not found: " + file)
}

func (m *mockExecutor) RunSilent(name string, args ...string) error {
	key := name + " " + strings.Join(args, " ")
	if m.runnableCmds[key] {
		return nil
	}
	return errors.New("command failed: " + key)
}

func (m *mockExecutor) RunPiped(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.runPipedFunc != nil {
		return m.runPipedFunc(name, args, stdin, stdout)
	}
	return nil
}

func TestDetectRuntime(t *testing.T) {
	tests := []struct {
		name     string
		exec     *mockExecutor
		wantName string
		wantErr  bool
	}{
		{
			name: "docker available",
			exec: &mockExecutor{
				availableBins: map[string]bool{"docker": true},
				runnableCmds:  map[string]bool{"docker info": true},
			},
			wantName: "docker",
		},
		{
			name: "podman fallback when docker missing",
			exec: &mockExecutor{
				availableBins: map[string]bool{"podman": true},
				runnableCmds:  map[string]bool{"podman info": true},
			},
			wantName: "podman",
		},
		{
			name: "docker installed but not operational",
			exec: &mockExecutor{
				availableBins: map[string]bool{"docker": true, "podman": true},
				runnableCmds:  map[string]bool{"podman info": true},
			},
			wantName: "podman",
		},
		{
			name:    "neither available",
			exec:    &mockExecutor{availableBins: map[string]bool{}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, err := detectRuntime(tt.exec)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("detectRuntime: %v", err)
			}
			if rt.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", rt.Name(), tt.wantName)
			}
		})
	}
}

func TestImageExists(t *testing.T) {
	exec := &mockExecutor{
		availableBins: map[string]bool{"docker": true},
		runnableCmds: map[string]bool{
			"docker info":                             true,
			"docker image inspect markitdown:latest":  true,
		},
	}
	rt := newDockerRuntime(exec)

	if err := rt.ImageExists("markitdown:latest"); err != nil {
		t.Errorf("ImageExists(markitdown:latest): %v", err)
	}
	if err := rt.ImageExists("missing:latest"); err == nil {
		t.Error("ImageExists(missing:latest) succeeded, want error")
	}
}

func TestRunPipesStdinStdout(t *testing.T) {
	var gotArgs []string
	exec := &mockExecutor{
		runPipedFunc: func(name string, args []string, stdin io.Reader, stdout io.Writer) error {
			gotArgs = append([]string{name}, args...)
			_, err := io.Copy(stdout, stdin)
			return err
		},
	}
	rt := newDockerRuntime(exec)

	var out bytes.Buffer
	if err := rt.Run(context.Background(), "markitdown:latest", strings.NewReader("doc body"), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.String() != "doc body" {
		t.Errorf("stdout = %q, want %q", out.String(), "doc body")
	}
	want := "docker run --rm -i markitdown:latest"
	if got := strings.Join(gotArgs, " "); got != want {
		t.Errorf("command = %q, want %q", got, want)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rt := newDockerRuntime(&mockExecutor{})
	err := rt.Run(ctx, "markitdown:latest", strings.NewReader(""), io.Discard)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run on cancelled context = %v, want context.Canceled", err)
	}
}

func TestLastLine(t *testing.T) {
	in := "pulling image\nwarning: deprecated flag\nError: conversion failed\n\n"
	if got := lastLine(in); got != "Error: conversion failed" {
		t.Errorf("lastLine = %q", got)
	}
}
