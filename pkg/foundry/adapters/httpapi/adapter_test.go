//nolint:revive // Test file - relaxed linting
package httpapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"

	"github.com/conneroisu/foundry/pkg/foundry/adapters/httpapi"
	"github.com/conneroisu/foundry/pkg/foundry/ports"
	"github.com/conneroisu/foundry/pkg/foundryerrs"
)

func newAdapter(t *testing.T, handler http.HandlerFunc) *httpapi.Adapter {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter, err := httpapi.NewAdapter(httpapi.Config{
		BaseURL:    server.URL + "/",
		HTTPClient: server.Client(),
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	return adapter
}

// TestNewAdapter tests configuration validation.
func TestNewAdapter(t *testing.T) {
	if _, err := httpapi.NewAdapter(httpapi.Config{}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
	if _, err := httpapi.NewAdapter(httpapi.Config{BaseURL: "http://vtt.test:30000"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestStatus tests the status probe outcomes.
func TestStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		want     *ports.StatusInfo
		wantCode foundryerrs.ErrorCode
	}{
		{
			name:   "active world",
			status: http.StatusOK,
			body:   `{"active":true,"version":"12.331","world":"lost-mine","system":"dnd5e","users":2}`,
			want: &ports.StatusInfo{
				Active:  true,
				Version: "12.331",
				World:   "lost-mine",
				System:  "dnd5e",
				Users:   2,
			},
		},
		{
			name:     "no world loaded",
			status:   http.StatusOK,
			body:     `{"active":false,"version":"12.331"}`,
			want:     &ports.StatusInfo{Version: "12.331"},
			wantCode: foundryerrs.ErrCodeNoActiveWorld,
		},
		{
			name:     "server error",
			status:   http.StatusBadGateway,
			body:     `bad gateway`,
			wantCode: foundryerrs.ErrCodeUnreachable,
		},
		{
			name:     "not json",
			status:   http.StatusOK,
			body:     `<html>`,
			wantCode: foundryerrs.ErrCodeUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/status" || r.Method != http.MethodGet {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			got, err := adapter.Status(context.Background())
			if tt.wantCode != "" {
				if !foundryerrs.IsNetworkError(err) || !foundryerrs.HasCode(err, tt.wantCode) {
					t.Fatalf("expected network error %s, got %v", tt.wantCode, err)
				}
			} else if err != nil {
				t.Fatal(err)
			}

			if tt.want == nil {
				return
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.IgnoreFields(ports.StatusInfo{}, "Raw")); diff != "" {
				t.Errorf("status mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestStatusUnreachable tests a remote that refuses connections.
func TestStatusUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	adapter, err := httpapi.NewAdapter(httpapi.Config{BaseURL: baseURL})
	if err != nil {
		t.Fatal(err)
	}

	_, err = adapter.Status(context.Background())
	if !foundryerrs.HasCode(err, foundryerrs.ErrCodeUnreachable) {
		t.Fatalf("expected unreachable, got %v", err)
	}
}

// TestJoin tests the form login and cookie extraction.
func TestJoin(t *testing.T) {
	adapter := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/join" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Error(err)

			return
		}
		want := map[string]string{"action": "join", "userid": "gm", "password": "secret"}
		for key, value := range want {
			if got := r.PostForm.Get(key); got != value {
				t.Errorf("form %s = %q, want %q", key, got, value)
			}
		}

		http.SetCookie(w, &http.Cookie{Name: "session", Value: "tok-123", Path: "/"})
		http.Redirect(w, r, "/game", http.StatusFound)
	})

	token, err := adapter.Join(context.Background(), "gm", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if token != "tok-123" {
		t.Errorf("token = %q, want tok-123", token)
	}
}

// TestJoinWithoutCookie tests that a login reply lacking a session cookie
// is an auth failure that references the reply body.
func TestJoinWithoutCookie(t *testing.T) {
	adapter := newAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"incorrect password"}`)
	})

	_, err := adapter.Join(context.Background(), "gm", "wrong")
	if !foundryerrs.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if !strings.Contains(err.Error(), "incorrect password") {
		t.Errorf("error %q does not reference the reply body", err.Error())
	}
}

// TestJoinCookieWithoutSession tests cookies that carry no session token.
func TestJoinCookieWithoutSession(t *testing.T) {
	adapter := newAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "theme", Value: "dark"})
	})

	if _, err := adapter.Join(context.Background(), "gm", "secret"); !foundryerrs.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

// TestUpload tests the multipart upload and its failure modes.
func TestUpload(t *testing.T) {
	t.Run("stores file", func(t *testing.T) {
		adapter := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie("session")
			if err != nil || cookie.Value != "tok-123" {
				t.Errorf("session cookie = %v, %v", cookie, err)
			}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Error(err)

				return
			}
			if got := r.FormValue("source"); got != "data" {
				t.Errorf("source = %q", got)
			}
			if got := r.FormValue("target"); got != "worlds/w/maps" {
				t.Errorf("target = %q", got)
			}
			file, header, err := r.FormFile("upload")
			if err != nil {
				t.Error(err)

				return
			}
			defer file.Close()
			data, _ := io.ReadAll(file)
			if string(data) != "hello" || header.Filename != "map.webp" {
				t.Errorf("part %q = %q", header.Filename, data)
			}

			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":  "success",
				"message": "saved",
			})
		})

		res, err := adapter.Upload(context.Background(), "tok-123", ports.Upload{
			TargetPath: "worlds/w/maps",
			FileName:   "map.webp",
			Data:       []byte("hello"),
			MimeType:   "image/webp",
		})
		if err != nil {
			t.Fatal(err)
		}
		want := &ports.UploadResult{Path: "worlds/w/maps/map.webp", Message: "saved", Status: "success"}
		if diff := cmp.Diff(want, res); diff != "" {
			t.Errorf("result mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("forbidden records status", func(t *testing.T) {
		adapter := newAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})

		_, err := adapter.Upload(context.Background(), "stale", ports.Upload{FileName: "a.png"})
		if got := foundryerrs.HTTPStatus(err); got != http.StatusForbidden {
			t.Fatalf("HTTPStatus = %d, want 403 (err %v)", got, err)
		}
	})

	t.Run("error reply", func(t *testing.T) {
		adapter := newAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"status":"error","message":"target directory does not exist"}`)
		})

		_, err := adapter.Upload(context.Background(), "tok", ports.Upload{FileName: "a.png"})
		if !foundryerrs.IsRemoteError(err) || !strings.Contains(err.Error(), "does not exist") {
			t.Fatalf("expected remote error, got %v", err)
		}
	})

	t.Run("missing file name", func(t *testing.T) {
		adapter := newAdapter(t, func(http.ResponseWriter, *http.Request) {
			t.Error("request sent without a file name")
		})

		_, err := adapter.Upload(context.Background(), "tok", ports.Upload{})
		if !foundryerrs.IsValidationError(err) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}
