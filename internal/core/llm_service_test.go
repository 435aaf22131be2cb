package core

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestGenerateJSON(t *testing.T) {
	tests := []struct {
		name    string
		model   *stubModel
		want    string
		wantErr error
	}{
		{"plain json", fixedModel(`{"a": 1}`, nil), `{"a": 1}`, nil},
		{"fenced json", fixedModel("```json\n{\"a\": 1}\n```", nil), `{"a": 1}`, nil},
		{"upper fence", fixedModel("```JSON\n[1]\n```", nil), `[1]`, nil},
		{"prose", fixedModel("Here is your plan: do squats", nil), "", ErrInvalidJSON},
		{"fenced prose", fixedModel("```json\nnot json at all\n```", nil), "", ErrInvalidJSON},
		{"truncated", fixedModel(`{"workoutPlan": ["squats"`, nil), "", ErrInvalidJSON},
		{"not found", fixedModel("", &googleapi.Error{Code: http.StatusNotFound, Message: "models/x is not found"}), "", ErrModelUnavailable},
		{"404 text", fixedModel("", errors.New("googleapi: Error 404: model missing")), "", ErrModelUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewLLMService(tt.model).GenerateJSON(context.Background(), "plan", "prompt")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if got != "" {
					t.Errorf("raw text must not be returned with an error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("GenerateJSON failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGenerateJSONConfig(t *testing.T) {
	model := fixedModel(`{}`, nil)
	if _, err := NewLLMService(model).GenerateJSON(context.Background(), "narrative", "the prompt"); err != nil {
		t.Fatalf("GenerateJSON failed: %v", err)
	}
	req := model.Calls()[0]
	if req.Prompt != "the prompt" || req.ResponseMIMEType != "application/json" {
		t.Errorf("unexpected request: %+v", req)
	}
	if req.Temperature == nil || *req.Temperature != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", req.Temperature)
	}
	if req.MaxOutputTokens == nil || *req.MaxOutputTokens != 4096 {
		t.Errorf("expected 4096 max tokens, got %v", req.MaxOutputTokens)
	}
}

func TestGenerateJSONMissingKey(t *testing.T) {
	if _, err := NewLLMService(nil).GenerateJSON(context.Background(), "plan", "p"); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestGenerateJSONPassesThroughOtherErrors(t *testing.T) {
	upstream := &googleapi.Error{Code: http.StatusTooManyRequests, Message: "quota"}
	_, err := NewLLMService(fixedModel("", upstream)).GenerateJSON(context.Background(), "plan", "p")
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Code != http.StatusTooManyRequests {
		t.Errorf("expected wrapped upstream error, got %v", err)
	}
	if errors.Is(err, ErrModelUnavailable) {
		t.Error("429 must not be reported as model unavailable")
	}
}

func TestStripCodeFences(t *testing.T) {
	if got := StripCodeFences("  ```json\n[1,2]```  "); got != "[1,2]" {
		t.Errorf("got %q", got)
	}
	if got := StripCodeFences(`{"a":"b"}`); got != `{"a":"b"}` {
		t.Errorf("got %q", got)
	}
}
