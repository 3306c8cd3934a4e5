// ABOUTME: Tests for the gateway-backed repositories
// ABOUTME: Verifies routes, methods, payload shapes and error passthrough against httptest

package repository

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/2389/coven-client/internal/auth"
	"github.com/2389/coven-client/internal/client"
)

type staticCreds struct{ token string }

func (s staticCreds) OAuth2TokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: s.token, TokenType: "Bearer"})
}

func (staticCreds) LoginSucceeded(context.Context, auth.TokenPair) error { return nil }

func (staticCreds) HandleUnauthorized(context.Context) {}

type call struct {
	method string
	path   string
	query  string
	body   map[string]any
	auth   string
}

func newRemote(t *testing.T, status int, reply any) (*Remote, *[]call) {
	t.Helper()
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := call{method: r.Method, path: r.URL.EscapedPath(), query: r.URL.RawQuery, auth: r.Header.Get("Authorization")}
		_ = json.NewDecoder(r.Body).Decode(&c.body)
		calls = append(calls, c)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if reply != nil {
			_ = json.NewEncoder(w).Encode(reply)
		}
	}))
	t.Cleanup(srv.Close)

	api, err := client.New(client.Options{BaseURL: srv.URL, Credentials: staticCreds{token: "tok"}})
	require.NoError(t, err)
	return NewRemote(api), &calls
}

func TestRemote_FetchMe(t *testing.T) {
	r, calls := newRemote(t, http.StatusOK, Account{ID: "u1", Email: "ada@example.org", Entitlements: []string{"pro"}})

	acct, err := r.FetchMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", acct.ID)
	assert.Equal(t, []string{"pro"}, acct.Entitlements)

	require.Len(t, *calls, 1)
	assert.Equal(t, http.MethodGet, (*calls)[0].method)
	assert.Equal(t, "/v1/me", (*calls)[0].path)
	assert.Equal(t, "Bearer tok", (*calls)[0].auth)
}

func TestRemote_UpdateProfile(t *testing.T) {
	r, calls := newRemote(t, http.StatusOK, Account{ID: "u1", DisplayName: "Grace"})

	name := "Grace"
	acct, err := r.UpdateProfile(context.Background(), ProfileUpdate{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Grace", acct.DisplayName)

	got := (*calls)[0]
	assert.Equal(t, http.MethodPatch, got.method)
	assert.Equal(t, map[string]any{"display_name": "Grace"}, got.body)
}

func TestRemote_ListPrompts(t *testing.T) {
	r, calls := newRemote(t, http.StatusOK, map[string]any{"prompts": []Prompt{{ID: "p1", Category: "daily", Text: "Describe your morning"}}})

	prompts, err := r.ListPrompts(context.Background(), "daily")
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, "p1", prompts[0].ID)
	assert.Equal(t, "/v1/prompts", (*calls)[0].path)
	assert.Equal(t, "category=daily", (*calls)[0].query)

	_, err = r.ListPrompts(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, (*calls)[1].query)
}

func TestRemote_ShufflePrompts(t *testing.T) {
	r, calls := newRemote(t, http.StatusOK, map[string]any{"prompts": []Prompt{}})

	_, err := r.ShufflePrompts(context.Background(), "story")
	require.NoError(t, err)

	got := (*calls)[0]
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/v1/prompts/shuffle", got.path)
	assert.Equal(t, "story", got.body["category"])
}

func TestRemote_History(t *testing.T) {
	r, calls := newRemote(t, http.StatusOK, map[string]any{"recordings": []Recording{{ID: "r1"}}})

	recs, err := r.ListHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "/v1/history", (*calls)[0].path)
}

func TestRemote_GetRecordingEscapesID(t *testing.T) {
	r, calls := newRemote(t, http.StatusOK, Recording{ID: "a/b"})

	_, err := r.GetRecording(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "/v1/history/a%2Fb", (*calls)[0].path)
}

func TestRemote_DeleteRecording(t *testing.T) {
	r, calls := newRemote(t, http.StatusNoContent, nil)

	require.NoError(t, r.DeleteRecording(context.Background(), "r1"))
	assert.Equal(t, http.MethodDelete, (*calls)[0].method)
	assert.Equal(t, "/v1/history/r1", (*calls)[0].path)
}

func TestRemote_Uploads(t *testing.T) {
	r, calls := newRemote(t, http.StatusOK, Upload{ID: "up1", Status: UploadPending})

	up, err := r.CreateUpload(context.Background(), CreateUploadRequest{Filename: "take.m4a", ContentType: "audio/m4a", SizeBytes: 1024})
	require.NoError(t, err)
	assert.Equal(t, "up1", up.ID)
	assert.Equal(t, "/v1/uploads", (*calls)[0].path)
	assert.Equal(t, "take.m4a", (*calls)[0].body["filename"])

	_, err = r.CompleteUpload(context.Background(), "up1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, (*calls)[1].method)
	assert.Equal(t, "/v1/uploads/up1/complete", (*calls)[1].path)
}

func TestRemote_ErrorsPassThrough(t *testing.T) {
	r, _ := newRemote(t, http.StatusNotFound, map[string]string{"error": "no such recording"})

	_, err := r.GetRecording(context.Background(), "missing")
	assert.True(t, client.IsKind(err, client.KindNotFound))
}
