package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"shorts-pipeline/config"
	"shorts-pipeline/types"
)

const playlistDescription = "AI generated YouTube Shorts"

var errStopPages = errors.New("stop paging")

// ErrChannelNotFound means no channel has the requested id
var ErrChannelNotFound = errors.New("channel not found")

// ClientSource hands out an authorized HTTP client
type ClientSource interface {
	HTTPClient(ctx context.Context) (*http.Client, error)
}

// YouTubeUploader publishes through the YouTube Data API v3
type YouTubeUploader struct {
	cfg     config.UploadConfig
	clients ClientSource
	opts    []option.ClientOption
	log     zerolog.Logger
}

// NewYouTubeUploader builds an uploader. opts are passed to the API client
// after the authorized HTTP client.
func NewYouTubeUploader(cfg config.UploadConfig, clients ClientSource, log zerolog.Logger, opts ...option.ClientOption) *YouTubeUploader {
	return &YouTubeUploader{
		cfg:     cfg,
		clients: clients,
		opts:    opts,
		log:     log.With().Str("component", "upload").Logger(),
	}
}

func (u *YouTubeUploader) service(ctx context.Context) (*youtube.Service, error) {
	client, err := u.clients.HTTPClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("youtube auth: %w", err)
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, u.opts...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return svc, nil
}

// Upload sends videoFile with meta and returns the new video id. A playlist
// failure is logged and does not fail the upload.
func (u *YouTubeUploader) Upload(ctx context.Context, videoFile string, meta types.VideoMetadata) (string, error) {
	u.log.Info().Msg("authenticating with YouTube API")
	svc, err := u.service(ctx)
	if err != nil {
		return "", err
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                meta.Title,
			Description:          meta.Description,
			Tags:                 meta.Tags,
			CategoryId:           meta.CategoryID,
			DefaultLanguage:      meta.Language,
			DefaultAudioLanguage: meta.Language,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           meta.Privacy,
			SelfDeclaredMadeForKids: meta.MadeForKids,
			License:                 meta.License,
			Embeddable:              meta.Embeddable,
			PublicStatsViewable:     meta.PublicStatsViewable,
			// false must reach the API, it is not the server default
			ForceSendFields: []string{"SelfDeclaredMadeForKids", "Embeddable", "PublicStatsViewable"},
		},
	}

	f, err := os.Open(videoFile)
	if err != nil {
		return "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()
	if fi, err := f.Stat(); err == nil {
		u.log.Info().Str("title", meta.Title).Float64("mb", float64(fi.Size())/1024/1024).Msg("uploading")
	}

	var mediaOpts []googleapi.MediaOption
	if u.cfg.ChunkSize > 0 {
		mediaOpts = append(mediaOpts, googleapi.ChunkSize(u.cfg.ChunkSize))
	}
	call := svc.Videos.Insert([]string{"snippet", "status"}, video).
		NotifySubscribers(u.cfg.NotifySubscribers).
		Media(f, mediaOpts...).
		ProgressUpdater(func(current, total int64) {
			if total > 0 {
				u.log.Debug().Int64("sent", current).Int64("total", total).
					Float64("pct", float64(current)*100/float64(total)).Msg("upload progress")
			}
		}).
		Context(ctx)

	uploaded, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("youtube upload: %w", err)
	}
	u.log.Info().Str("video_id", uploaded.Id).Str("url", VideoURL(uploaded.Id)).Msg("✅ uploaded")

	if meta.Playlist != "" {
		if err := u.addToPlaylist(ctx, svc, uploaded.Id, meta.Playlist); err != nil {
			u.log.Warn().Err(err).Str("playlist", meta.Playlist).Msg("could not add video to playlist")
		}
	}
	return uploaded.Id, nil
}

// AddToPlaylist adds videoID to the playlist titled name, creating it when
// the channel has none.
func (u *YouTubeUploader) AddToPlaylist(ctx context.Context, videoID, name string) error {
	svc, err := u.service(ctx)
	if err != nil {
		return err
	}
	return u.addToPlaylist(ctx, svc, videoID, name)
}

func (u *YouTubeUploader) addToPlaylist(ctx context.Context, svc *youtube.Service, videoID, name string) error {
	id, err := findPlaylist(ctx, svc, name)
	if err != nil {
		return err
	}
	if id == "" {
		created, err := svc.Playlists.Insert([]string{"snippet", "status"}, &youtube.Playlist{
			Snippet: &youtube.PlaylistSnippet{
				Title:           name,
				Description:     playlistDescription,
				DefaultLanguage: u.cfg.Language,
			},
			Status: &youtube.PlaylistStatus{PrivacyStatus: "private"},
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("create playlist: %w", err)
		}
		id = created.Id
		u.log.Info().Str("playlist", name).Str("playlist_id", id).Msg("playlist created")
	}

	_, err = svc.PlaylistItems.Insert([]string{"snippet"}, &youtube.PlaylistItem{
		Snippet: &youtube.PlaylistItemSnippet{
			PlaylistId: id,
			ResourceId: &youtube.ResourceId{Kind: "youtube#video", VideoId: videoID},
		},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add playlist item: %w", err)
	}
	u.log.Info().Str("playlist", name).Msg("✅ added to playlist")
	return nil
}

func findPlaylist(ctx context.Context, svc *youtube.Service, name string) (string, error) {
	var id string
	err := svc.Playlists.List([]string{"snippet"}).Mine(true).MaxResults(50).
		Pages(ctx, func(resp *youtube.PlaylistListResponse) error {
			for _, p := range resp.Items {
				if p.Snippet != nil && p.Snippet.Title == name {
					id = p.Id
					return errStopPages
				}
			}
			return nil
		})
	if err != nil && !errors.Is(err, errStopPages) {
		return "", fmt.Errorf("list playlists: %w", err)
	}
	return id, nil
}

// Channel is the public snippet and statistics of a channel
type Channel struct {
	ID                    string `json:"id"`
	Title                 string `json:"title"`
	Description           string `json:"description"`
	CustomURL             string `json:"custom_url,omitempty"`
	PublishedAt           string `json:"published_at"`
	Thumbnail             string `json:"thumbnail,omitempty"`
	SubscriberCount       uint64 `json:"subscriber_count"`
	HiddenSubscriberCount bool   `json:"hidden_subscriber_count"`
	VideoCount            uint64 `json:"video_count"`
	ViewCount             uint64 `json:"view_count"`
}

// ChannelInfo looks up a channel by id
func (u *YouTubeUploader) ChannelInfo(ctx context.Context, channelID string) (*Channel, error) {
	svc, err := u.service(ctx)
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("channel_id", channelID).Msg("fetching channel info")
	resp, err := svc.Channels.List([]string{"snippet", "statistics"}).Id(channelID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}
	item := resp.Items[0]
	ch := &Channel{ID: item.Id}
	if sn := item.Snippet; sn != nil {
		ch.Title, ch.Description, ch.CustomURL, ch.PublishedAt = sn.Title, sn.Description, sn.CustomUrl, sn.PublishedAt
		if sn.Thumbnails != nil && sn.Thumbnails.Default != nil {
			ch.Thumbnail = sn.Thumbnails.Default.Url
		}
	}
	if st := item.Statistics; st != nil {
		ch.SubscriberCount = st.SubscriberCount
		ch.HiddenSubscriberCount = st.HiddenSubscriberCount
		ch.VideoCount = st.VideoCount
		ch.ViewCount = st.ViewCount
	}
	return ch, nil
}

// VideoURL is the watch page of a video
func VideoURL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
}
