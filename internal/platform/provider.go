// Package platform abstracts the video platform that accounts publish to.
package platform

import (
	"context"
	"fmt"
	"io"
)

// Provider defines the interface for publishing platform implementations.
// Errors are returned as *apperr.Error values carrying the transient or
// permanent classification and a health reason.
type Provider interface {
	// Upload performs a resumable upload of the video with the given metadata.
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)

	// Probe verifies the credential and returns the channel it publishes to.
	Probe(ctx context.Context, creds Credentials) (*ChannelInfo, error)
}

// Credentials are the decrypted OAuth values for one account.
type Credentials struct {
	// ClientID and ClientSecret belong to the account's project.
	ClientID     string
	ClientSecret string

	// RefreshToken is the account's long-lived token.
	RefreshToken string
}

// UploadRequest contains everything needed to publish one video.
type UploadRequest struct {
	Credentials Credentials

	// Video streams the source bytes. Size is used for progress reporting.
	Video    io.Reader
	Size     int64
	Filename string

	Title       string
	Description string
	Tags        []string

	// Privacy is "public", "unlisted" or "private".
	Privacy string
}

// UploadResult contains the result of a completed upload.
type UploadResult struct {
	// VideoID is the platform's identifier for the published video.
	VideoID string

	// URL is the public watch URL.
	URL string
}

// ChannelInfo identifies the channel behind a credential.
type ChannelInfo struct {
	ID    string
	Title string
}

// ProviderConfig contains configuration for initializing a provider.
type ProviderConfig struct {
	// Provider is the platform name ("youtube").
	Provider string

	// ProviderOptions contains provider-specific configuration.
	ProviderOptions map[string]string
}

// NewProvider creates a new platform provider based on the configuration.
func NewProvider(ctx context.Context, config ProviderConfig) (Provider, error) {
	switch config.Provider {
	case "youtube", "":
		if newYouTubeProvider == nil {
			return nil, fmt.Errorf("youtube provider not registered")
		}
		return newYouTubeProvider(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported platform provider: %s", config.Provider)
	}
}

var newYouTubeProvider func(context.Context, ProviderConfig) (Provider, error)

// RegisterYouTubeProvider registers the YouTube provider constructor.
func RegisterYouTubeProvider(fn func(context.Context, ProviderConfig) (Provider, error)) {
	newYouTubeProvider = fn
}
