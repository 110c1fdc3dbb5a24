package youtube

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/alphauslabs/buckshot/internal/apperr"
	"github.com/alphauslabs/buckshot/internal/platform"
)

func init() {
	platform.RegisterYouTubeProvider(NewYouTubeProvider)
}

const (
	// defaultCategoryID is "People & Blogs".
	defaultCategoryID = "22"
	chunkSize         = 8 << 20
	watchURL          = "https://www.youtube.com/watch?v="
)

var scopes = []string{yt.YoutubeUploadScope, yt.YoutubeReadonlyScope}

// YouTubeProvider implements platform.Provider with the YouTube Data API.
type YouTubeProvider struct {
	categoryID string
}

// NewYouTubeProvider creates a YouTube provider. The "category_id" option
// overrides the default video category.
func NewYouTubeProvider(ctx context.Context, config platform.ProviderConfig) (platform.Provider, error) {
	p := &YouTubeProvider{categoryID: defaultCategoryID}
	if id := config.ProviderOptions["category_id"]; id != "" {
		p.categoryID = id
	}
	return p, nil
}

// service builds a client that refreshes access tokens from creds.
func (p *YouTubeProvider) service(ctx context.Context, creds platform.Credentials) (*yt.Service, error) {
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       scopes,
	}
	ts := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})

	svc, err := yt.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube client: %w", err)
	}
	return svc, nil
}

// Upload publishes the video with a resumable, chunked upload.
func (p *YouTubeProvider) Upload(ctx context.Context, req platform.UploadRequest) (*platform.UploadResult, error) {
	svc, err := p.service(ctx, req.Credentials)
	if err != nil {
		return nil, classify(err, "create client")
	}

	video := &yt.Video{
		Snippet: &yt.VideoSnippet{
			Title:       req.Title,
			Description: req.Description,
			Tags:        req.Tags,
			CategoryId:  p.categoryID,
		},
		Status: &yt.VideoStatus{
			PrivacyStatus:           req.Privacy,
			SelfDeclaredMadeForKids: false,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}

	call := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(req.Video, googleapi.ChunkSize(chunkSize)).
		Context(ctx)

	res, err := call.Do()
	if err != nil {
		return nil, classify(err, "upload")
	}

	return &platform.UploadResult{
		VideoID: res.Id,
		URL:     watchURL + res.Id,
	}, nil
}

// Probe refreshes the credential and looks up the caller's channel.
func (p *YouTubeProvider) Probe(ctx context.Context, creds platform.Credentials) (*platform.ChannelInfo, error) {
	svc, err := p.service(ctx, creds)
	if err != nil {
		return nil, classify(err, "create client")
	}

	res, err := svc.Channels.List([]string{"id", "snippet", "status"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, classify(err, "list channels")
	}
	if len(res.Items) == 0 {
		return nil, apperr.Permanent(apperr.ReasonChannelAbsent, nil, "no channel is linked to this account")
	}

	ch := res.Items[0]
	info := &platform.ChannelInfo{ID: ch.Id}
	if ch.Snippet != nil {
		info.Title = ch.Snippet.Title
	}
	return info, nil
}
