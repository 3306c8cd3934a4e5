// ABOUTME: In-process fake coven gateway for integration tests
// ABOUTME: Serves the client's routes, validates bearer tokens and rotates credentials on demand

package gatewaytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/2389/coven-client/internal/auth"
	"github.com/2389/coven-client/internal/repository"
)

// Gateway is a fake gateway. Its state sits behind one lock and is changed
// through its methods.
type Gateway struct {
	Server *httptest.Server

	mu sync.Mutex
	// validAccess and validRefresh are the tokens the gateway accepts.
	validAccess  string
	validRefresh string
	// pendingRotation is sent on the next authenticated response.
	pendingRotation *auth.TokenPair
	// rejectAll answers 401 to every authenticated call.
	rejectAll bool

	account    repository.Account
	config     repository.AppConfig
	prompts    []repository.Prompt
	recordings map[string]repository.Recording
	uploads    map[string]repository.Upload
	nextID     int

	hits map[string]int
}

// New starts a gateway accepting pair.
func New(pair auth.TokenPair) *Gateway {
	g := &Gateway{
		validAccess:  pair.AccessToken,
		validRefresh: pair.RefreshToken,
		account: repository.Account{
			ID:           "acct-1",
			Email:        "ada@example.org",
			DisplayName:  "Ada",
			Plan:         "pro",
			Entitlements: []string{"export", "unlimited_recordings"},
			CreatedAt:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		config: repository.AppConfig{
			MinimumVersion: "1.0.0",
			SupportEmail:   "help@example.org",
			Features:       map[string]bool{"transcripts": true},
			Limits:         map[string]int{"max_recording_seconds": 600},
		},
		prompts: []repository.Prompt{
			{ID: "p1", Category: "daily", Text: "What surprised you today?"},
			{ID: "p2", Category: "daily", Text: "Describe your morning."},
			{ID: "p3", Category: "story", Text: "Tell a story about a trip."},
		},
		recordings: map[string]repository.Recording{
			"r1": {ID: "r1", Title: "First take", DurationSeconds: 42},
		},
		uploads: map[string]repository.Upload{},
		hits:    map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/me", g.authed(g.handleGetMe))
	mux.HandleFunc("PATCH /v1/me", g.authed(g.handlePatchMe))
	mux.HandleFunc("GET /v1/config", g.authed(g.handleConfig))
	mux.HandleFunc("GET /v1/prompts", g.authed(g.handleListPrompts))
	mux.HandleFunc("POST /v1/prompts/shuffle", g.authed(g.handleShuffle))
	mux.HandleFunc("GET /v1/history", g.authed(g.handleListHistory))
	mux.HandleFunc("GET /v1/history/{id}", g.authed(g.handleGetRecording))
	mux.HandleFunc("DELETE /v1/history/{id}", g.authed(g.handleDeleteRecording))
	mux.HandleFunc("POST /v1/uploads", g.authed(g.handleCreateUpload))
	mux.HandleFunc("POST /v1/uploads/{id}/complete", g.authed(g.handleCompleteUpload))
	mux.HandleFunc("POST /v1/auth/refresh", g.handleRefresh)

	g.Server = httptest.NewServer(g.count(mux))
	return g
}

// URL returns the gateway's base URL.
func (g *Gateway) URL() string {
	return g.Server.URL
}

// Close shuts the server down.
func (g *Gateway) Close() {
	g.Server.Close()
}

// RotateOnNextCall makes the next authenticated response carry pair in the
// rotation headers. The gateway accepts pair from then on.
func (g *Gateway) RotateOnNextCall(pair auth.TokenPair) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pendingRotation = &pair
}

// RevokeAll makes every authenticated call fail with 401 and no rotation.
func (g *Gateway) RevokeAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rejectAll = true
}

// Accept replaces the pair the gateway accepts and lifts RevokeAll.
func (g *Gateway) Accept(pair auth.TokenPair) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.validAccess = pair.AccessToken
	g.validRefresh = pair.RefreshToken
	g.rejectAll = false
}

// SetAccount replaces the account served by /v1/me.
func (g *Gateway) SetAccount(acct repository.Account) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.account = acct
}

// Hits returns how many requests reached "METHOD /path".
func (g *Gateway) Hits(route string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hits[route]
}

// TotalHits returns the number of requests served.
func (g *Gateway) TotalHits() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := 0
	for _, n := range g.hits {
		total += n
	}
	return total
}

func (g *Gateway) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.hits[r.Method+" "+r.URL.Path]++
		g.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// authed checks the bearer token and applies a pending rotation. Handlers run
// with g.mu held.
func (g *Gateway) authed(h func(w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()

		token, msg := auth.ExtractBearerToken(r.Header.Get(auth.HeaderAuthorization))
		if msg != "" || g.rejectAll || token != g.validAccess {
			if msg == "" {
				msg = "invalid token"
			}
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": msg})
			return
		}

		if g.pendingRotation != nil {
			auth.SetRotatedTokens(w.Header(), *g.pendingRotation)
			g.validAccess = g.pendingRotation.AccessToken
			g.validRefresh = g.pendingRotation.RefreshToken
			g.pendingRotation = nil
		}
		h(w, r)
	}
}

func (g *Gateway) handleGetMe(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.account)
}

func (g *Gateway) handlePatchMe(w http.ResponseWriter, r *http.Request) {
	var update repository.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if update.DisplayName != nil {
		g.account.DisplayName = *update.DisplayName
	}
	if update.Email != nil {
		g.account.Email = *update.Email
	}
	writeJSON(w, http.StatusOK, g.account)
}

func (g *Gateway) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.config)
}

func (g *Gateway) promptsIn(category string) []repository.Prompt {
	out := []repository.Prompt{}
	for _, p := range g.prompts {
		if category == "" || p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

func (g *Gateway) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"prompts": g.promptsIn(r.URL.Query().Get("category"))})
}

// handleShuffle rotates the prompt order deterministically so tests can tell
// a shuffled list from the previous one.
func (g *Gateway) handleShuffle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Category string `json:"category"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if len(g.prompts) > 1 {
		g.prompts = append(g.prompts[1:], g.prompts[0])
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": g.promptsIn(body.Category)})
}

func (g *Gateway) handleListHistory(w http.ResponseWriter, _ *http.Request) {
	recs := make([]repository.Recording, 0, len(g.recordings))
	for _, rec := range g.recordings {
		recs = append(recs, rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"recordings": recs})
}

func (g *Gateway) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	rec, ok := g.recordings[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "recording not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (g *Gateway) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := g.recordings[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "recording not found"})
		return
	}
	delete(g.recordings, id)
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleCreateUpload(w http.ResponseWriter, r *http.Request) {
	var req repository.CreateUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Filename == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "filename is required"})
		return
	}

	g.nextID++
	up := repository.Upload{
		ID:        fmt.Sprintf("up%d", g.nextID),
		UploadURL: g.Server.URL + "/blobs/" + req.Filename,
		Status:    repository.UploadPending,
		ExpiresAt: time.Now().Add(time.Hour).UTC(),
	}
	g.uploads[up.ID] = up
	writeJSON(w, http.StatusCreated, up)
}

func (g *Gateway) handleCompleteUpload(w http.ResponseWriter, r *http.Request) {
	up, ok := g.uploads[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "upload not found"})
		return
	}

	g.nextID++
	recID := fmt.Sprintf("r%d", g.nextID)
	g.recordings[recID] = repository.Recording{ID: recID, Title: strings.TrimPrefix(up.UploadURL, g.Server.URL+"/blobs/")}

	up.Status = repository.UploadCompleted
	up.RecordingID = recID
	g.uploads[up.ID] = up
	writeJSON(w, http.StatusOK, up)
}

// handleRefresh exchanges the accepted refresh token for a new pair, returned
// in the rotation headers.
func (g *Gateway) handleRefresh(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "refresh_token is required"})
		return
	}
	if g.rejectAll || body.RefreshToken != g.validRefresh {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh token revoked"})
		return
	}

	g.nextID++
	next := auth.TokenPair{
		AccessToken:  fmt.Sprintf("access-%d", g.nextID),
		RefreshToken: fmt.Sprintf("refresh-%d", g.nextID),
	}
	g.validAccess = next.AccessToken
	g.validRefresh = next.RefreshToken

	auth.SetRotatedTokens(w.Header(), next)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
