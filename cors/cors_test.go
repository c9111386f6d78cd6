package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// allowed reports whether a preflight from the origin is permitted.
func allowed(t *testing.T, config Config, origin string) bool {
	t.Helper()

	handler := New(config).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := httptest.NewRequest(http.MethodOptions, "/", nil)
	request.Header.Set("Origin", origin)
	request.Header.Set("Access-Control-Request-Method", http.MethodGet)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	return recorder.Header().Get("Access-Control-Allow-Origin") == origin
}

func TestLocalhostIsAlwaysAllowed(t *testing.T) {
	cases := []string{
		"http://localhost",
		"http://localhost:3000",
		"https://localhost:8443",
		"http://127.0.0.1:8080",
		"http://[::1]:8080",
	}

	for _, origin := range cases {
		if !allowed(t, Config{}, origin) {
			t.Errorf("origin %q was not allowed", origin)
		}
	}
}

func TestConfiguredOriginsAreAllowed(t *testing.T) {
	config := Config{AdditionalAllowedOrigins: []string{"https://app.example"}}

	if !allowed(t, config, "https://app.example") {
		t.Error("configured origin was not allowed")
	}

	// Scheme, host, and port must all match exactly.
	for _, origin := range []string{
		"http://app.example",
		"https://app.example:8443",
		"https://other.example",
		"https://evil-app.example",
	} {
		if allowed(t, config, origin) {
			t.Errorf("origin %q was allowed", origin)
		}
	}
}

func TestUnknownOriginsAreRejected(t *testing.T) {
	if allowed(t, Config{}, "https://app.example") {
		t.Error("an unconfigured origin was allowed")
	}
}
