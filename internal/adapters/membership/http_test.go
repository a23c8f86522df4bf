package membership

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsVerified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/verify/100":
			w.Write([]byte(`{"verified":true}`))
		case "/verify/200":
			w.Write([]byte(`{"verified":false}`))
		case "/verify/300":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()

	checker := NewHTTPChecker(srv.URL)
	ctx := context.Background()

	t.Run("Verified", func(t *testing.T) {
		ok, err := checker.IsVerified(ctx, 100)
		if err != nil {
			t.Fatalf("IsVerified failed: %v", err)
		}
		if !ok {
			t.Error("Expected verified")
		}
	})

	t.Run("Not Verified", func(t *testing.T) {
		ok, err := checker.IsVerified(ctx, 200)
		if err != nil {
			t.Fatalf("IsVerified failed: %v", err)
		}
		if ok {
			t.Error("Expected not verified")
		}
	})

	t.Run("Upstream Error", func(t *testing.T) {
		if _, err := checker.IsVerified(ctx, 300); err == nil {
			t.Error("Expected error on non-200 response")
		}
	})

	t.Run("Malformed Body", func(t *testing.T) {
		if _, err := checker.IsVerified(ctx, 400); err == nil {
			t.Error("Expected error on undecodable body")
		}
	})

	t.Run("Unreachable Service", func(t *testing.T) {
		dead := NewHTTPChecker("http://127.0.0.1:1")
		if _, err := dead.IsVerified(ctx, 100); err == nil {
			t.Error("Expected transport error")
		}
	})
}

func TestStatic(t *testing.T) {
	ok, err := Static(true).IsVerified(context.Background(), 1)
	if err != nil || !ok {
		t.Errorf("Static(true) = %v, %v", ok, err)
	}
	ok, err = Static(false).IsVerified(context.Background(), 1)
	if err != nil || ok {
		t.Errorf("Static(false) = %v, %v", ok, err)
	}
}
