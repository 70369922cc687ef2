package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tasklift/tasklift/pkg/genai"
)

func TestGenerateSendsChatCompletion(t *testing.T) {
	var captured struct {
		Model          string `json:"model"`
		Messages       []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		ResponseFormat *struct {
			Type string `json:"type"`
		} `json:"response_format"`
	}
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"category\":\"work\"}"}}]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	out, err := client.Generate(context.Background(), "sk-test", genai.Request{
		Model:        "gpt-4o-mini",
		System:       "You classify tasks.",
		Prompt:       "finish quarterly report",
		JSONResponse: true,
		MaxTokens:    200,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `{"category":"work"}` {
		t.Errorf("got %q", out)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if captured.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", captured.Model)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Errorf("messages = %+v", captured.Messages)
	}
	if captured.ResponseFormat == nil || captured.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v", captured.ResponseFormat)
	}
}

func TestGenerateMapsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.Generate(context.Background(), "sk-test", genai.Request{Model: "gpt-4o-mini", Prompt: "hi"})

	var apiErr *genai.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *genai.APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Code != "insufficient_quota" {
		t.Errorf("got %+v", apiErr)
	}
	if genai.Classify(apiErr) != genai.ClassQuota {
		t.Errorf("classified as %v, want quota", genai.Classify(apiErr))
	}
}

func TestGenerateWithoutCredential(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:0"})
	_, err := client.Generate(context.Background(), "", genai.Request{Model: "gpt-4o-mini", Prompt: "hi"})

	var apiErr *genai.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *genai.APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", apiErr.StatusCode)
	}
}
