// Package image holds the image stores a hypervisor driver fetches guest
// disks through. BittorrentStore delegates the whole transfer to the
// "bittorrent" dom0 plugin and only prepares its arguments.
package image

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/containerd/errdefs"

	"torrentstore/internal/config"
	"torrentstore/internal/logging"
	"torrentstore/internal/vmutils"
	"torrentstore/notify"
)

const (
	pluginName    = "bittorrent"
	pluginFn      = "download_vhd"
	descriptorExt = ".torrent"
)

var (
	ErrBaseURLNotConfigured = fmt.Errorf("cannot build torrent URL without xenserver.torrent_base_url configured: %w",
		errdefs.ErrFailedPrecondition)
	ErrUploadNotSupported = fmt.Errorf("bittorrent image upload: %w", errdefs.ErrNotImplemented)
)

// Instance identifies the guest an image is fetched for. The store only
// passes it through to logs and notifications.
type Instance struct {
	UUID string
	Name string
}

type BittorrentStore struct {
	cfg       config.XenServer
	uuidStack func() []string
	srPath    func(context.Context, vmutils.Session) (string, error)
	notifier  notify.Adapter
	log       *slog.Logger
}

type Option func(*BittorrentStore)

// WithUUIDStack replaces the scratch identifier generator.
func WithUUIDStack(fn func() []string) Option {
	return func(s *BittorrentStore) { s.uuidStack = fn }
}

// WithSRPath replaces the storage repository path resolver.
func WithSRPath(fn func(context.Context, vmutils.Session) (string, error)) Option {
	return func(s *BittorrentStore) { s.srPath = fn }
}

func WithNotifier(n notify.Adapter) Option {
	return func(s *BittorrentStore) { s.notifier = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *BittorrentStore) { s.log = l }
}

func NewBittorrentStore(cfg config.XenServer, opts ...Option) *BittorrentStore {
	finder := vmutils.SRFinder{MatchingFilter: cfg.SRMatchingFilter, BasePath: cfg.SRBasePath}
	s := &BittorrentStore{
		cfg:       cfg,
		uuidStack: vmutils.MakeUUIDStack,
		srPath:    finder.SRPath,
		log:       logging.L(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// TorrentURL resolves where the descriptor for imageID is published.
func (s *BittorrentStore) TorrentURL(imageID string) (string, error) {
	raw := s.cfg.TorrentBaseURL
	if raw == "" {
		return "", ErrBaseURLNotConfigured
	}
	base, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("xenserver.torrent_base_url %q: %v: %w", raw, err, errdefs.ErrFailedPrecondition)
	}
	// the plugin fetches the descriptor itself, so it needs a full URL
	if !base.IsAbs() || base.Host == "" {
		return "", fmt.Errorf("xenserver.torrent_base_url %q must be an absolute URL with a host: %w",
			raw, errdefs.ErrFailedPrecondition)
	}

	if !strings.Contains(base.Path, "/") {
		s.log.Warn("xenserver.torrent_base_url has no path separator, so no path from it "+
			"will be part of the torrent URL; specify a base URL ending in a slash (RFC 3986 section 5.2.3)",
			"torrent_base_url", raw)
	} else if !strings.HasSuffix(base.Path, "/") {
		// the last segment names the directory holding the descriptors
		base.Path += "/"
		if base.RawPath != "" {
			base.RawPath += "/"
		}
	}

	ref := &url.URL{Path: imageID + descriptorExt}
	return base.ResolveReference(ref).String(), nil
}

// DownloadImage asks the dom0 plugin to fetch imageID into the session's SR
// and returns the VDI uuids it reports. Errors are returned as produced.
func (s *BittorrentStore) DownloadImage(ctx context.Context, session vmutils.Session, instance Instance, imageID string) ([]string, error) {
	torrentURL, err := s.TorrentURL(imageID)
	if err != nil {
		return nil, err
	}
	srPath, err := s.srPath(ctx, session)
	if err != nil {
		return nil, err
	}

	params := s.downloadParams(imageID, torrentURL, srPath)
	s.log.Debug("calling bittorrent plugin",
		"image_id", imageID, "instance", instance.UUID, "instance_name", instance.Name,
		"torrent_url", torrentURL, "sr_path", srPath)

	var vdis []string
	err = session.CallPluginSerialized(ctx, pluginName, pluginFn, params, &vdis)
	s.publish(ctx, instance, imageID, torrentURL, vdis, err)
	if err != nil {
		return nil, err
	}
	return vdis, nil
}

func (s *BittorrentStore) downloadParams(imageID, torrentURL, srPath string) map[string]any {
	c := s.cfg
	return map[string]any{
		"image_id":                              imageID,
		"uuid_stack":                            s.uuidStack(),
		"sr_path":                               srPath,
		"torrent_url":                           torrentURL,
		"torrent_seed_duration":                 c.TorrentSeedDuration,
		"torrent_seed_chance":                   c.TorrentSeedChance,
		"torrent_max_last_accessed":             c.TorrentMaxLastAccessed,
		"torrent_listen_port_start":             c.TorrentListenPortStart,
		"torrent_listen_port_end":               c.TorrentListenPortEnd,
		"torrent_download_stall_cutoff":         c.TorrentDownloadStallCutoff,
		"torrent_max_seeder_processes_per_host": c.TorrentMaxSeederProcessesPerHost,
	}
}

// UploadImage is not supported: images are only ever consumed over
// BitTorrent, never published through it.
func (s *BittorrentStore) UploadImage(context.Context, vmutils.Session, Instance, string, []string) error {
	return ErrUploadNotSupported
}

func (s *BittorrentStore) publish(ctx context.Context, instance Instance, imageID, torrentURL string, vdis []string, callErr error) {
	if s.notifier == nil {
		return
	}
	ev := notify.Event{
		Type:         notify.EventDownloadEnd,
		ImageID:      imageID,
		InstanceUUID: instance.UUID,
		InstanceName: instance.Name,
		TorrentURL:   torrentURL,
		VDIs:         vdis,
		Timestamp:    time.Now().UTC(),
	}
	if callErr != nil {
		ev.Type = notify.EventDownloadError
		ev.VDIs = nil
		ev.Error = callErr.Error()
	}
	if err := s.notifier.Publish(ctx, ev); err != nil {
		s.log.Warn("image notification failed", "image_id", imageID, "event", ev.Type, "err", err)
	}
}
