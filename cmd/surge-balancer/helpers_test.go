package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/John-Robertt/surge-balancer/internal/config"
)

func loadTestSettings(t *testing.T) (*config.Config, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	return config.Load("", nil)
}

func testLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}
