package ollama

import "testing"

func TestNewEmbedder_Defaults(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")

	e, err := NewEmbedder("", "")
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	if e == nil {
		t.Fatal("expected an embedder")
	}
}

func TestNewEmbedder_RejectsUnparseableHost(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")

	if _, err := NewEmbedder("http://[::1", ModelMXBAI); err == nil {
		t.Fatal("expected error for unparseable host")
	}
}

func TestNewEmbedder_EnvOverridesConfiguredHost(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://[::1")

	if _, err := NewEmbedder("http://localhost:11434", ModelMXBAI); err == nil {
		t.Fatal("expected OLLAMA_HOST to take precedence over the configured host")
	}
}
