package proxy

import (
	"errors"
	"net/http"
	"testing"
)

func TestResolver_Resolve(t *testing.T) {
	const defaultTarget = "https://default.example.com/v1"

	tests := []struct {
		name        string
		headers     map[string]string
		wantBaseURL string
		wantKey     string
		wantErr     error
	}{
		{
			name: "authorization with target url",
			headers: map[string]string{
				"Authorization": "Bearer sk-1",
				"X-Target-URL":  "https://target.example.com",
			},
			wantBaseURL: "https://target.example.com",
			wantKey:     "sk-1",
		},
		{
			name: "target url wins over base url pair",
			headers: map[string]string{
				"Authorization": "Bearer sk-1",
				"X-Target-URL":  "https://target.example.com",
				"X-Base-URL":    "https://base.example.com",
				"X-Api-Key":     "sk-2",
			},
			wantBaseURL: "https://target.example.com",
			wantKey:     "sk-1",
		},
		{
			name: "base url with api key",
			headers: map[string]string{
				"X-Base-URL": "https://base.example.com",
				"X-Api-Key":  "sk-2",
			},
			wantBaseURL: "https://base.example.com",
			wantKey:     "sk-2",
		},
		{
			name: "base url pair wins over bare authorization",
			headers: map[string]string{
				"Authorization": "Bearer sk-1",
				"X-Base-URL":    "https://base.example.com",
				"X-Api-Key":     "sk-2",
			},
			wantBaseURL: "https://base.example.com",
			wantKey:     "sk-2",
		},
		{
			name:        "authorization alone uses default target",
			headers:     map[string]string{"Authorization": "bearer sk-3"},
			wantBaseURL: defaultTarget,
			wantKey:     "sk-3",
		},
		{
			name:    "nothing",
			headers: map[string]string{},
			wantErr: ErrAuthMissing,
		},
		{
			name:    "base url without key",
			headers: map[string]string{"X-Base-URL": "https://base.example.com"},
			wantErr: ErrAuthMissing,
		},
		{
			name:    "api key without base url",
			headers: map[string]string{"X-Api-Key": "sk-2"},
			wantErr: ErrAuthMissing,
		},
		{
			name:    "basic scheme",
			headers: map[string]string{"Authorization": "Basic dXNlcjpwYXNz"},
			wantErr: ErrAuthInvalid,
		},
		{
			name:    "empty bearer token",
			headers: map[string]string{"Authorization": "Bearer   ", "X-Target-URL": "https://t.example.com"},
			wantErr: ErrAuthInvalid,
		},
	}

	r := NewResolver(defaultTarget)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}

			creds, err := r.Resolve(h)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() unexpected error: %v", err)
			}
			if creds.BaseURL != tt.wantBaseURL {
				t.Errorf("BaseURL = %q, want %q", creds.BaseURL, tt.wantBaseURL)
			}
			if creds.APIKey != tt.wantKey {
				t.Errorf("APIKey = %q, want %q", creds.APIKey, tt.wantKey)
			}
		})
	}
}

func TestResolver_SetDefaultTarget(t *testing.T) {
	r := NewResolver("https://old.example.com")
	r.SetDefaultTarget("https://new.example.com")

	h := http.Header{}
	h.Set("Authorization", "Bearer k")
	creds, err := r.Resolve(h)
	if err != nil {
		t.Fatal(err)
	}
	if creds.BaseURL != "https://new.example.com" {
		t.Errorf("BaseURL = %q, want reloaded default", creds.BaseURL)
	}
}

func TestResolver_BearerWithoutDefaultTarget(t *testing.T) {
	r := NewResolver("")

	h := http.Header{}
	h.Set("Authorization", "Bearer k")
	if _, err := r.Resolve(h); !errors.Is(err, ErrAuthMissing) {
		t.Fatalf("Resolve() error = %v, want ErrAuthMissing", err)
	}

	h.Set("X-Target-URL", "https://explicit.example.com")
	creds, err := r.Resolve(h)
	if err != nil {
		t.Fatal(err)
	}
	if creds.BaseURL != "https://explicit.example.com" {
		t.Errorf("BaseURL = %q, want explicit target", creds.BaseURL)
	}
}
