package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"json", Config{Level: "info", Format: "json"}, false},
		{"console stderr", Config{Level: "debug", Format: "console", Output: "stderr"}, false},
		{"bad level", Config{Level: "loud", Format: "json"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && l == nil {
				t.Fatal("expected logger")
			}
		})
	}
}

func TestLogRequestRedactsHeaders(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := Wrap(zap.New(core)).WithComponent("api")

	l.LogRequest("POST", "/v1/scan", map[string][]string{
		"Authorization": {"Bearer secret"},
		"Content-Type":  {"application/json"},
	})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	headers, ok := fields["headers"].(map[string]string)
	if !ok {
		t.Fatalf("headers field has type %T", fields["headers"])
	}
	if headers["Authorization"] != "[REDACTED]" {
		t.Errorf("authorization not redacted: %q", headers["Authorization"])
	}
	if headers["Content-Type"] != "application/json" {
		t.Errorf("content type = %q", headers["Content-Type"])
	}
	if fields["component"] != "api" {
		t.Errorf("component = %v", fields["component"])
	}
	if _, ok := fields["body"]; ok {
		t.Error("request body must not be logged")
	}
}
