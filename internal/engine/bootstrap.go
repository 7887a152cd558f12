package engine

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"torrentstore/internal/config"
	"torrentstore/internal/image"
	"torrentstore/internal/logging"
	"torrentstore/internal/telemetry"
	"torrentstore/internal/transport"
	"torrentstore/internal/vmutils"
	"torrentstore/internal/xenapi"
	"torrentstore/notify"
)

type closer = func(context.Context) error

func Bootstrap(ctx context.Context, cfg config.Config) (*Engine, error) {
	e := &Engine{}

	// 1. session
	session, closeSession, err := openSession(ctx, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	e.closers = append(e.closers, closeSession)

	// 2. metrics
	session, metrics := instrument(session, cfg.Telemetry)
	if metrics != nil {
		e.closers = append(e.closers, metrics.Shutdown)
	}
	e.session = session

	// 3. notifications
	var opts []image.Option
	if cfg.Notifications.Driver != "" {
		n, err := notify.NewAdapter(cfg.Notifications)
		if err != nil {
			_ = e.Close(ctx)
			return nil, fmt.Errorf("notifications: %w", err)
		}
		e.closers = append(e.closers, func(context.Context) error { return n.Close() })
		opts = append(opts, image.WithNotifier(n))
	}

	// 4. store
	e.store = image.NewBittorrentStore(cfg.XenServer, opts...)
	return e, nil
}

// NewRelay opens the upstream session and binds the HostAgent listener.
func NewRelay(ctx context.Context, cfg config.Config) (*Relay, error) {
	r := &Relay{}

	session, closeSession, err := openSession(ctx, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	r.closers = append(r.closers, closeSession)

	session, metrics := instrument(session, cfg.Telemetry)
	if metrics != nil {
		r.closers = append(r.closers, metrics.Shutdown)
	}

	srv, err := transport.StartServer(cfg.Relay.Listen, session)
	if err != nil {
		_ = closeAll(ctx, r.closers)
		return nil, fmt.Errorf("transport: %w", err)
	}
	r.transport = srv
	logging.L().Info("host agent listening", "addr", srv.Addr().String(), "upstream", cfg.Session.Transport)
	return r, nil
}

func openSession(ctx context.Context, cfg config.Session) (vmutils.Session, closer, error) {
	switch cfg.Transport {
	case "grpc":
		c, err := transport.Dial(ctx, cfg.HostAgentAddr)
		if err != nil {
			return nil, nil, err
		}
		return c, func(context.Context) error { return c.Close() }, nil
	default:
		s, err := xenapi.Login(ctx, xenapi.Options{
			URL:                cfg.URL,
			Username:           cfg.Username,
			Password:           cfg.Password,
			Timeout:            cfg.Timeout,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
}

func instrument(s vmutils.Session, cfg config.Telemetry) (vmutils.Session, *http.Server) {
	if cfg.MetricsPort == 0 {
		return s, nil
	}
	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)
	return m.InstrumentSession(s), telemetry.Expose(cfg.MetricsPort, reg)
}
