// ABOUTME: Repository contracts shared by the remote and cached implementations
// ABOUTME: Callers see the same signatures whether or not a cache sits in between

package repository

import "context"

// AccountRepository reads and updates the signed-in account.
type AccountRepository interface {
	FetchMe(ctx context.Context) (Account, error)
	UpdateProfile(ctx context.Context, update ProfileUpdate) (Account, error)
}

// ConfigRepository reads the app-wide configuration.
type ConfigRepository interface {
	FetchAppConfig(ctx context.Context) (AppConfig, error)
}

// PromptRepository lists recording prompts. ShufflePrompts always asks the
// gateway for a new ordering.
type PromptRepository interface {
	ListPrompts(ctx context.Context, category string) ([]Prompt, error)
	ShufflePrompts(ctx context.Context, category string) ([]Prompt, error)
}

// HistoryRepository reads and deletes past recordings.
type HistoryRepository interface {
	ListHistory(ctx context.Context) ([]Recording, error)
	GetRecording(ctx context.Context, id string) (Recording, error)
	DeleteRecording(ctx context.Context, id string) error
}

// UploadRepository manages upload slots.
type UploadRepository interface {
	CreateUpload(ctx context.Context, req CreateUploadRequest) (Upload, error)
	CompleteUpload(ctx context.Context, id string) (Upload, error)
}

// Repositories bundles every repository.
type Repositories struct {
	Accounts AccountRepository
	Config   ConfigRepository
	Prompts  PromptRepository
	History  HistoryRepository
	Uploads  UploadRepository
}
