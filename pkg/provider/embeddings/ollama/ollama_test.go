package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/natuvoice/pkg/provider/embeddings/ollama"
)

// embedServer answers /api/embed with vec and checks the requested model.
func embedServer(t *testing.T, wantModel string, vec []float32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != wantModel || len(req.Input) != 1 {
			t.Errorf("model=%q inputs=%d", req.Model, len(req.Input))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"model": wantModel, "embeddings": [][]float32{vec}})
	}))
}

func TestNew(t *testing.T) {
	if _, err := ollama.New("", ""); err == nil {
		t.Error("expected error for empty model")
	}
	p, err := ollama.New("", "nomic-embed-text:latest")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Dimensions() != 768 || p.ModelID() != "nomic-embed-text:latest" {
		t.Errorf("dims=%d model=%q", p.Dimensions(), p.ModelID())
	}
}

func TestEmbed_LearnsDimensions(t *testing.T) {
	srv := embedServer(t, "bge-m3", []float32{0.1, 0.2, 0.3})
	defer srv.Close()

	p, _ := ollama.New(srv.URL+"/", "bge-m3")
	if p.Dimensions() != 0 {
		t.Fatalf("unknown model should start at 0, got %d", p.Dimensions())
	}
	vec, err := p.Embed(context.Background(), "hola")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || p.Dimensions() != 3 {
		t.Errorf("vec=%v dims=%d", vec, p.Dimensions())
	}
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	srv := embedServer(t, "bge-m3", []float32{0.1, 0.2})
	defer srv.Close()

	p, _ := ollama.New(srv.URL, "bge-m3", ollama.WithDimensions(1024))
	if _, err := p.Embed(context.Background(), "hola"); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestEmbed_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	p, _ := ollama.New(srv.URL, "missing")
	if _, err := p.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}
