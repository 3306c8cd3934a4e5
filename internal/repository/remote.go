// ABOUTME: Gateway-backed repository implementations built on the network client
// ABOUTME: Each method is one HTTP call; errors are the client's typed errors unchanged

package repository

import (
	"context"
	"net/http"
	"net/url"

	"github.com/2389/coven-client/internal/client"
)

// Doer performs gateway calls. *client.Client implements it.
type Doer interface {
	Do(ctx context.Context, req client.Request, out any) (int, error)
}

// Remote implements every repository contract against the gateway.
type Remote struct {
	api Doer
}

// NewRemote creates a gateway-backed repository set.
func NewRemote(api Doer) *Remote {
	return &Remote{api: api}
}

// Repositories returns r behind every contract.
func (r *Remote) Repositories() Repositories {
	return Repositories{Accounts: r, Config: r, Prompts: r, History: r, Uploads: r}
}

func (r *Remote) FetchMe(ctx context.Context) (Account, error) {
	var out Account
	_, err := r.api.Do(ctx, client.Request{Path: "/v1/me", RequiresAuth: true}, &out)
	return out, err
}

func (r *Remote) UpdateProfile(ctx context.Context, update ProfileUpdate) (Account, error) {
	var out Account
	_, err := r.api.Do(ctx, client.Request{
		Method:       http.MethodPatch,
		Path:         "/v1/me",
		Body:         update,
		RequiresAuth: true,
	}, &out)
	return out, err
}

func (r *Remote) FetchAppConfig(ctx context.Context) (AppConfig, error) {
	var out AppConfig
	_, err := r.api.Do(ctx, client.Request{Path: "/v1/config", RequiresAuth: true}, &out)
	return out, err
}

func (r *Remote) ListPrompts(ctx context.Context, category string) ([]Prompt, error) {
	var out struct {
		Prompts []Prompt `json:"prompts"`
	}
	_, err := r.api.Do(ctx, client.Request{
		Path:         "/v1/prompts",
		Query:        categoryQuery(category),
		RequiresAuth: true,
	}, &out)
	return out.Prompts, err
}

func (r *Remote) ShufflePrompts(ctx context.Context, category string) ([]Prompt, error) {
	var out struct {
		Prompts []Prompt `json:"prompts"`
	}
	_, err := r.api.Do(ctx, client.Request{
		Method:       http.MethodPost,
		Path:         "/v1/prompts/shuffle",
		Body:         map[string]string{"category": category},
		RequiresAuth: true,
	}, &out)
	return out.Prompts, err
}

func categoryQuery(category string) url.Values {
	if category == "" {
		return nil
	}
	return url.Values{"category": {category}}
}

func (r *Remote) ListHistory(ctx context.Context) ([]Recording, error) {
	var out struct {
		Recordings []Recording `json:"recordings"`
	}
	_, err := r.api.Do(ctx, client.Request{Path: "/v1/history", RequiresAuth: true}, &out)
	return out.Recordings, err
}

func (r *Remote) GetRecording(ctx context.Context, id string) (Recording, error) {
	var out Recording
	_, err := r.api.Do(ctx, client.Request{
		Path:         "/v1/history/" + url.PathEscape(id),
		RequiresAuth: true,
	}, &out)
	return out, err
}

func (r *Remote) DeleteRecording(ctx context.Context, id string) error {
	_, err := r.api.Do(ctx, client.Request{
		Method:       http.MethodDelete,
		Path:         "/v1/history/" + url.PathEscape(id),
		RequiresAuth: true,
	}, nil)
	return err
}

func (r *Remote) CreateUpload(ctx context.Context, req CreateUploadRequest) (Upload, error) {
	var out Upload
	_, err := r.api.Do(ctx, client.Request{
		Method:       http.MethodPost,
		Path:         "/v1/uploads",
		Body:         req,
		RequiresAuth: true,
	}, &out)
	return out, err
}

// CompleteUpload finalizes an upload. It runs under the upload timeout since
// the gateway processes the file before answering.
func (r *Remote) CompleteUpload(ctx context.Context, id string) (Upload, error) {
	var out Upload
	_, err := r.api.Do(ctx, client.Request{
		Method:       http.MethodPost,
		Path:         "/v1/uploads/" + url.PathEscape(id) + "/complete",
		RequiresAuth: true,
		Upload:       true,
	}, &out)
	return out, err
}
