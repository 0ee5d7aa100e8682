package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestItemProcessorProcess(t *testing.T) {
	tests := []struct {
		name      string
		transform func(ctx context.Context, n int) (string, error)
		validate  func(string) *ItemFailure
		want      string
		wantKind  FailureKind
	}{
		{
			name:      "success",
			transform: func(_ context.Context, n int) (string, error) { return strings.Repeat("x", n), nil },
			want:      "xxx",
		},
		{
			name:      "transport error",
			transform: func(context.Context, int) (string, error) { return "", &HTTPError{StatusCode: 500} },
			wantKind:  TransportFailure,
		},
		{
			name:      "upstream error",
			transform: func(context.Context, int) (string, error) { return "", errors.New("bad json") },
			wantKind:  UpstreamFailure,
		},
		{
			name:      "validation rejects result",
			transform: func(context.Context, int) (string, error) { return "", nil },
			validate: func(s string) *ItemFailure {
				return requireFields(textField("value", s))
			},
			wantKind: ValidationFailure,
		},
		{
			name:      "untagged validation failure",
			transform: func(context.Context, int) (string, error) { return "short", nil },
			validate:  func(string) *ItemFailure { return &ItemFailure{Err: errors.New("too short")} },
			wantKind:  ValidationFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pauses := 0
			p := &ItemProcessor[int, string]{
				Transform: tt.transform,
				Validate:  tt.validate,
				Pacer:     &Pacer{Delay: time.Second, sleep: func(time.Duration) { pauses++ }},
			}

			got, failure := p.Process(context.Background(), WorkItem[int]{ID: "item", Payload: 3})

			require.Equal(t, 1, pauses, "exactly one paced call per item")
			if tt.wantKind == "" {
				require.Nil(t, failure)
				require.Equal(t, tt.want, got)
				return
			}
			require.NotNil(t, failure)
			require.Equal(t, tt.wantKind, failure.Kind)
			require.Empty(t, got)
		})
	}
}

func TestValidateNotCalledOnTransformError(t *testing.T) {
	p := &ItemProcessor[int, string]{
		Transform: func(context.Context, int) (string, error) { return "", errors.New("down") },
		Validate: func(string) *ItemFailure {
			t.Fatal("validate called after failed transform")
			return nil
		},
	}

	_, failure := p.Process(context.Background(), WorkItem[int]{ID: "a"})
	require.Equal(t, UpstreamFailure, failure.Kind)
}

func TestGenerateSlugFromTitle(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		expected string
	}{
		{"basic", "Hello World", "hello-world"},
		{"special chars", "Title: With & Special!", "title-with-special"},
		{"unicode", "Café & Naïve", "caf-na-ve"},
		{"numbers", "React 18.2 Guide", "react-18-2-guide"},
		{"empty", "", "article"},
		{"only symbols", "!!!", "article"},
		{"long title", strings.Repeat("word ", 20), strings.Repeat("word-", 10)[:49]},
		{"hyphen trimming", "---start---", "start"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := generateSlugFromTitle(tt.title)
			if result != tt.expected {
				t.Errorf("generateSlugFromTitle() = %q, want %q", result, tt.expected)
			}
			if len(result) > 50 {
				t.Errorf("generateSlugFromTitle() result too long: %d chars", len(result))
			}
		})
	}
}

func TestHash8(t *testing.T) {
	hash1 := hash8("https://example.com/article1")
	hash2 := hash8("https://example.com/article2")

	if len(hash1) != 8 {
		t.Errorf("hash length = %d, want 8", len(hash1))
	}
	if hash1 == hash2 {
		t.Error("different inputs produced same hash")
	}
	if hash1 != hash8("https://example.com/article1") {
		t.Error("same input produced different hashes")
	}
}

func TestIdentities(t *testing.T) {
	require.Equal(t, "10.1071/WF24001", articleIdentity(Article{DOI: " 10.1071/WF24001 ", Title: "T"}))
	require.Equal(t, titleHash("Fire regimes"), articleIdentity(Article{Title: "Fire regimes"}))
	require.Len(t, titleHash("Fire regimes"), 64)

	require.Equal(t, "10.1071/WF24001", renderIdentity(PostDraft{ArticleID: "10.1071/WF24001", ArticleTitle: "T"}))
	require.Equal(t, titleHash("Fire regimes"), renderIdentity(PostDraft{ArticleTitle: "Fire regimes"}))

	// Titles sharing a long prefix stay distinct
	prefix := strings.Repeat("A very long shared title prefix ", 3)
	require.NotEqual(t,
		renderIdentity(PostDraft{ArticleTitle: prefix + "one"}),
		renderIdentity(PostDraft{ArticleTitle: prefix + "two"}))
}
