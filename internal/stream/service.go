package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"live-streamer/internal/events"
	"live-streamer/internal/platform/metrics"
	"live-streamer/internal/streamer"
)

// Orchestrator is the part of streamer.Orchestrator the service drives.
type Orchestrator interface {
	Start(ctx context.Context, desc streamer.StreamDescriptor) ([]*streamer.JoinHandle, error)
	Stop(streamID string) error
	Describe(streamID string) (streamer.StreamStatus, error)
	Registry() *streamer.Registry
}

// Config holds the publish-side settings of the service.
type Config struct {
	// HLSURL is the public base URL of the HLS endpoint, e.g. "https://cdn/hls/".
	HLSURL string
	// Prefix is the stream path prefix shared with the publish destination.
	Prefix string
	// MediaRoot, when set, confines source paths to this directory.
	MediaRoot string
	// DefaultResolutions are used when a start request names none.
	DefaultResolutions []streamer.Resolution
	// StatusTimeout bounds the status update made when a stream completes.
	StatusTimeout time.Duration
}

// Service binds live stream records to running streams.
type Service struct {
	repo      Repository
	orch      Orchestrator
	publisher events.Publisher
	metrics   *metrics.Metrics
	log       *slog.Logger
	cfg       Config

	playlistURI *regexp.Regexp
	segmentURI  *regexp.Regexp

	watchers sync.WaitGroup
}

// NewService returns a Service. publisher, m and log may be nil.
func NewService(repo Repository, orch Orchestrator, cfg Config, publisher events.Publisher, m *metrics.Metrics, log *slog.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.HLSURL) == "" || strings.TrimSpace(cfg.Prefix) == "" {
		return nil, fmt.Errorf("stream service: hls url and stream prefix are required")
	}
	if len(cfg.DefaultResolutions) == 0 {
		cfg.DefaultResolutions = []streamer.Resolution{streamer.P360}
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = 5 * time.Second
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	prefix := regexp.QuoteMeta(cfg.Prefix)
	return &Service{
		repo:        repo,
		orch:        orch,
		publisher:   publisher,
		metrics:     m,
		log:         log,
		cfg:         cfg,
		playlistURI: regexp.MustCompile(`/hls/` + prefix + `-(\d+)_?\d*\.m3u8`),
		segmentURI:  regexp.MustCompile(`/hls/` + prefix + `-(\d+)_\d*-\d*\.ts`),
	}, nil
}

// PlaybackURL is the URL viewers load for stream id.
func (s *Service) PlaybackURL(id int64) string {
	return s.cfg.HLSURL + s.cfg.Prefix + "-" + streamKey(id) + ".m3u8"
}

// Start records a new live stream and launches its pipelines. It returns once
// every pipeline is playing; completion is tracked in the background.
func (s *Service) Start(ctx context.Context, req StartRequest) (StreamView, error) {
	source, err := s.resolveSource(req.SourcePath)
	if err != nil {
		return StreamView{}, err
	}
	resolutions := req.Resolutions
	if len(resolutions) == 0 {
		resolutions = s.cfg.DefaultResolutions
	}

	record := LiveStream{
		VideoID:     req.VideoID,
		SourcePath:  source,
		Resolutions: resolutions,
		StartedAt:   time.Now().UTC(),
		Status:      StatusPending,
	}
	desc := streamer.StreamDescriptor{StreamID: "pending", SourcePath: source, Resolutions: resolutions}
	if err := desc.Validate(); err != nil {
		return StreamView{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	id, err := s.repo.AddStream(ctx, record)
	if err != nil {
		return StreamView{}, fmt.Errorf("record stream: %w", err)
	}
	record.ID = id
	desc.StreamID = record.StreamKey()
	log := s.log.With(slog.String("stream_id", desc.StreamID))

	joins, err := s.orch.Start(ctx, desc)
	if err != nil {
		if serr := s.repo.ChangeStatus(context.WithoutCancel(ctx), id, StatusEnded); serr != nil {
			log.Error("failed to mark stream as ended", slog.String("error", serr.Error()))
		}
		if s.metrics != nil {
			s.metrics.IncStartFailures()
		}
		s.publish(ctx, events.Event{Type: events.TypeStreamFailed, StreamID: desc.StreamID, Error: err.Error()})
		return StreamView{}, err
	}

	if err := s.repo.ChangeStatus(ctx, id, StatusRunning); err != nil {
		log.Error("failed to mark stream as running", slog.String("error", err.Error()))
	} else {
		record.Status = StatusRunning
	}
	if s.metrics != nil {
		s.metrics.IncStreamsStarted()
	}
	s.publish(ctx, events.Event{Type: events.TypeStreamStarted, StreamID: desc.StreamID, Resolutions: resolutionLabels(resolutions)})
	log.Info("stream started", slog.Int("pipelines", len(joins)))

	s.watchers.Add(1)
	go s.watch(id, joins)

	return s.view(record), nil
}

// watch waits for every pipeline of stream id to terminate, then marks the
// record ended and drops the stream from the registry.
func (s *Service) watch(id int64, joins []*streamer.JoinHandle) {
	defer s.watchers.Done()
	key := streamKey(id)
	log := s.log.With(slog.String("stream_id", key))

	var g errgroup.Group
	for _, j := range joins {
		g.Go(j.Wait)
	}
	if err := g.Wait(); err != nil {
		log.Error("stream supervisor failed", slog.String("error", err.Error()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StatusTimeout)
	defer cancel()
	if err := s.repo.ChangeStatus(ctx, id, StatusEnded); err != nil {
		log.Error("failed to mark stream as ended", slog.String("error", err.Error()))
	}
	s.orch.Registry().Remove(key)
	if s.metrics != nil {
		s.metrics.IncStreamsEnded()
	}
	s.publish(ctx, events.Event{Type: events.TypeStreamEnded, StreamID: key})
	log.Info("stream ended")
}

// Wait blocks until every completion watcher has returned or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.watchers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns the record of stream id with its playback URL and live pipelines.
func (s *Service) Get(ctx context.Context, id int64) (StreamView, error) {
	record, err := s.repo.GetStream(ctx, id)
	if err != nil {
		return StreamView{}, err
	}
	return s.view(record), nil
}

// Stop ends stream id. Stopping a stream that is no longer running only
// updates its record.
func (s *Service) Stop(ctx context.Context, id int64) error {
	record, err := s.repo.GetStream(ctx, id)
	if err != nil {
		return err
	}
	key := record.StreamKey()
	if err := s.orch.Stop(key); err != nil && !errors.Is(err, streamer.ErrStreamNotFound) {
		return err
	}
	if err := s.repo.ChangeStatus(ctx, id, StatusEnded); err != nil {
		return fmt.Errorf("mark stream %d ended: %w", id, err)
	}
	s.publish(ctx, events.Event{Type: events.TypeStreamStopped, StreamID: key})
	s.log.Info("stream stopped", slog.String("stream_id", key))
	return nil
}

// Authenticate decides whether the HLS endpoint may serve uri, a playlist
// ("/hls/{prefix}-{id}.m3u8", "/hls/{prefix}-{id}_{res}.m3u8") or a segment
// ("/hls/{prefix}-{id}_{res}-{n}.ts"). Only streams that have not ended are
// served; every other outcome is ErrAccessDenied.
func (s *Service) Authenticate(ctx context.Context, uri string) error {
	var re *regexp.Regexp
	switch {
	case strings.HasSuffix(uri, ".m3u8"):
		re = s.playlistURI
	case strings.HasSuffix(uri, ".ts"):
		re = s.segmentURI
	default:
		return ErrAccessDenied
	}
	m := re.FindStringSubmatch(uri)
	if m == nil {
		return ErrAccessDenied
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return ErrAccessDenied
	}
	record, err := s.repo.GetStream(ctx, id)
	if err != nil {
		if errors.Is(err, ErrStreamNotFound) {
			return ErrAccessDenied
		}
		return err
	}
	if record.Status == StatusEnded {
		return ErrAccessDenied
	}
	return nil
}

// MasterPlaylist renders the HLS master playlist of stream id over its live
// resolutions.
func (s *Service) MasterPlaylist(ctx context.Context, id int64) (string, error) {
	record, err := s.repo.GetStream(ctx, id)
	if err != nil {
		return "", err
	}
	if record.Status == StatusEnded {
		return "", ErrStreamEnded
	}
	live := liveResolutions(s.pipelines(record.StreamKey()))
	if len(live) == 0 {
		return "", ErrStreamEnded
	}
	return BuildMasterPlaylist(s.cfg.Prefix, record.StreamKey(), live), nil
}

// ActiveStreams reports how many recorded streams have not ended.
func (s *Service) ActiveStreams(ctx context.Context) (int, error) {
	return s.repo.ActiveStreamCount(ctx)
}

func (s *Service) view(record LiveStream) StreamView {
	return StreamView{
		LiveStream:  record,
		PlaybackURL: s.PlaybackURL(record.ID),
		Pipelines:   s.pipelines(record.StreamKey()),
	}
}

func (s *Service) pipelines(key string) []streamer.PipelineStatus {
	st, err := s.orch.Describe(key)
	if err != nil {
		return []streamer.PipelineStatus{}
	}
	return st.Pipelines
}

// resolveSource cleans path and, when a media root is configured, confines it
// to that root. The file must exist.
func (s *Service) resolveSource(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: source_path is required", ErrInvalidRequest)
	}
	if s.cfg.MediaRoot != "" {
		path = filepath.Join(s.cfg.MediaRoot, filepath.Clean("/"+path))
	} else {
		path = filepath.Clean(path)
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrSourceNotFound, path)
	}
	return path, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.log.Warn("publish stream event",
			slog.String("type", event.Type),
			slog.String("stream_id", event.StreamID),
			slog.String("error", err.Error()))
	}
}

func liveResolutions(pipelines []streamer.PipelineStatus) []streamer.Resolution {
	out := make([]streamer.Resolution, 0, len(pipelines))
	for _, p := range pipelines {
		if p.State == streamer.PipelinePlaying {
			out = append(out, p.Resolution)
		}
	}
	return out
}

func streamKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
