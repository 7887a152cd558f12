// Package engine assembles the image store and the relay from
// configuration.
package engine

import (
	"context"
	"errors"
	"net"
	"sync"

	"torrentstore/internal/image"
	"torrentstore/internal/transport"
	"torrentstore/internal/vmutils"
)

type Engine struct {
	store   *image.BittorrentStore
	session vmutils.Session
	closers []func(context.Context) error
}

func (e *Engine) Download(ctx context.Context, instance image.Instance, imageID string) ([]string, error) {
	return e.store.DownloadImage(ctx, e.session, instance, imageID)
}

func (e *Engine) Upload(ctx context.Context, instance image.Instance, imageID string, vdis []string) error {
	return e.store.UploadImage(ctx, e.session, instance, imageID, vdis)
}

// Close releases the session, notifier and metrics endpoint in reverse
// order of creation.
func (e *Engine) Close(ctx context.Context) error {
	err := closeAll(ctx, e.closers)
	e.closers = nil
	return err
}

// Relay serves a HostAgent in front of an upstream session.
type Relay struct {
	transport *transport.Server
	closers   []func(context.Context) error
	closeOnce sync.Once
}

func (r *Relay) Addr() net.Addr { return r.transport.Addr() }

// Run serves until ctx is done or the server fails, then releases the
// upstream session and metrics endpoint.
func (r *Relay) Run(ctx context.Context) error {
	serveDone := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
			r.transport.Stop()
		case <-serveDone:
		}
	}()

	err := r.transport.Serve()
	close(serveDone)
	<-stopped
	r.shutdown()
	return err
}

func (r *Relay) shutdown() {
	r.closeOnce.Do(func() {
		_ = closeAll(context.Background(), r.closers)
	})
}

func closeAll(ctx context.Context, closers []func(context.Context) error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		errs = append(errs, closers[i](ctx))
	}
	return errors.Join(errs...)
}
