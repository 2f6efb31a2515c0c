package agents

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestConfigValidate tests credential shape validation
func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		config Config
		valid  bool
	}{
		{"valid", Config{APIKey: "sk-abcdef1234", Model: "test-model"}, true},
		{"wrong prefix", Config{APIKey: "pk-abcdef1234", Model: "test-model"}, false},
		{"too short", Config{APIKey: "sk-ab", Model: "test-model"}, false},
		{"missing model", Config{APIKey: "sk-abcdef1234"}, false},
		{"bad url", Config{APIKey: "sk-abcdef1234", Model: "m", BaseURL: "not a url"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate()
			if tc.valid && err != nil {
				t.Fatalf("Expected valid config, got %v", err)
			}
			if !tc.valid {
				if err == nil {
					t.Fatal("Expected ConfigError")
				}
				var cerr *ConfigError
				if !errors.As(err, &cerr) {
					t.Fatalf("Expected ConfigError, got %T", err)
				}
			}
		})
	}
}

// TestNewClientRejectsBadConfig tests that a client is never built from a
// malformed credential
func TestNewClientRejectsBadConfig(t *testing.T) {
	_, err := NewClient(Config{APIKey: "bad", Model: "m"})
	if err == nil {
		t.Fatal("Expected error for malformed credential")
	}
}

// TestCompleteReturnsRawBody tests that the client hands the raw envelope to
// the caller untouched
func TestCompleteReturnsRawBody(t *testing.T) {
	body := `{"choices":[{"message":{"role":"assistant","content":"{\"target\":\"p1\"}"}}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-abcdef1234" {
			t.Errorf("Missing bearer auth, got %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "sk-abcdef1234", Model: "test-model", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	raw, err := client.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if raw != body {
		t.Errorf("Expected raw body passthrough, got %q", raw)
	}

	dec, err := ParseDecision(raw, []string{"p1"})
	if err != nil {
		t.Fatalf("ParseDecision on raw body failed: %v", err)
	}
	if dec.Target != "p1" {
		t.Errorf("Expected target 'p1', got '%s'", dec.Target)
	}
}

// TestCompleteTransportError tests status and timeout failures
func TestCompleteTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "sk-abcdef1234", Model: "test-model", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Complete(context.Background(), "prompt")
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected TransportError, got %v", err)
	}
}

// TestCompleteRespectsCancellation tests that an expired context aborts the
// call instead of blocking
func TestCompleteRespectsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "sk-abcdef1234", Model: "test-model", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = client.Complete(ctx, "prompt")
	if err == nil {
		t.Fatal("Expected error from cancelled context")
	}
}
