package defra

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValueToGraphQL(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"string", "hola", `"hola"`},
		{"string with newline", "a\nb", `"a\nb"`},
		{"string with quotes", `say "hi"`, `"say \"hi\""`},
		{"int", 42, "42"},
		{"float", 3.5, "3.5"},
		{"bool", true, "true"},
		{"array", []any{"a", "b"}, `["a", "b"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := valueToGraphQL(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMapToGraphQLInput(t *testing.T) {
	got, err := mapToGraphQLInput(map[string]any{"title": "El Bosque"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{title: "El Bosque"}` {
		t.Errorf("got %s", got)
	}
}

func TestClientCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v0/graphql" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req GQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !strings.Contains(req.Query, "create_BookSource") {
			t.Errorf("unexpected query %s", req.Query)
		}
		_ = json.NewEncoder(w).Encode(GQLResponse{
			Data: map[string]any{
				"create_BookSource": []any{map[string]any{"_docID": "bae-123"}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	docID, err := c.Create(context.Background(), "BookSource", map[string]any{"title": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if docID != "bae-123" {
		t.Errorf("docID = %s", docID)
	}
}

func TestClientSurfacesGraphQLErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(GQLResponse{
			Errors: []GQLError{{Message: "collection not found"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Create(context.Background(), "Nope", map[string]any{"a": 1}); err == nil {
		t.Fatal("expected error")
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health-check" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	down := NewClient("http://127.0.0.1:1")
	if err := down.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error for unreachable node")
	}
}
