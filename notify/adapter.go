package notify

import (
	"context"
	"fmt"
	"time"

	"torrentstore/internal/config"
)

const (
	EventDownloadEnd   = "image.download.end"
	EventDownloadError = "image.download.error"
)

// Event describes the outcome of one image download.
type Event struct {
	Type         string    `json:"event_type"`
	ImageID      string    `json:"image_id"`
	InstanceUUID string    `json:"instance_uuid,omitempty"`
	InstanceName string    `json:"instance_name,omitempty"`
	TorrentURL   string    `json:"torrent_url"`
	VDIs         []string  `json:"vdis,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Adapter is the common behaviour every notification driver exposes.
type Adapter interface {
	Configure(config.Notifications) error
	Publish(context.Context, Event) error
	Close() error // idempotent
}

/*──────── registry ───────*/

type factory = func() Adapter

var reg = map[string]factory{}

// Register is called from each driver's init().
func Register(name string, f factory) { reg[name] = f }

// NewAdapter returns a configured driver by name ("stdout", "kafka").
func NewAdapter(cfg config.Notifications) (Adapter, error) {
	f, ok := reg[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unknown notification driver %q", cfg.Driver)
	}
	a := f()
	if err := a.Configure(cfg); err != nil {
		return nil, err
	}
	return a, nil
}
