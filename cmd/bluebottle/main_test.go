package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name    string
		ctx     string
		want    map[string]any
		leaking string
	}{
		{
			name: "plain token",
			ctx:  `{"url":"http://h","token":"abc123"}`,
			want: map[string]any{"url": "http://h", "token": "***"},
		},
		{
			name:    "token with escaped quote",
			ctx:     `{"url":"http://h","token":"ab\"SECRETTAIL"}`,
			want:    map[string]any{"url": "http://h", "token": "***"},
			leaking: "SECRETTAIL",
		},
		{
			name: "no token",
			ctx:  `{"url":"http://h"}`,
			want: map[string]any{"url": "http://h"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redact([]byte(tt.ctx))
			if tt.leaking != "" && strings.Contains(got, tt.leaking) {
				t.Fatalf("redact() = %s, leaks %q", got, tt.leaking)
			}

			var doc map[string]any
			if err := json.Unmarshal([]byte(got), &doc); err != nil {
				t.Fatalf("redact() = %s, not valid JSON: %v", got, err)
			}
			if len(doc) != len(tt.want) {
				t.Fatalf("redact() = %v, want %v", doc, tt.want)
			}
			for k, v := range tt.want {
				if doc[k] != v {
					t.Errorf("redact()[%q] = %v, want %v", k, doc[k], v)
				}
			}
		})
	}
}

func TestRedact_InvalidJSON(t *testing.T) {
	if got := redact([]byte(`not json "token":"abc"`)); strings.Contains(got, "abc") {
		t.Errorf("redact() = %s, leaks token", got)
	}
}
