// torrentstore/notify/stdout/driver.go
package stdout

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"torrentstore/internal/config"
	"torrentstore/notify"
)

/* ────────── driver ────────── */
type driver struct {
	mu  sync.Mutex // serialises lines
	out io.Writer
	enc *json.Encoder
}

func newDriver(w io.Writer) *driver {
	return &driver{out: w, enc: json.NewEncoder(w)}
}

/* ────────── notify.Adapter ────────── */
func (d *driver) Configure(config.Notifications) error { return nil }

func (d *driver) Publish(_ context.Context, ev notify.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enc.Encode(ev) // one JSON object per line
}

func (d *driver) Close() error { return nil }

/* ────────── auto-register ────────── */
func init() {
	notify.Register("stdout", func() notify.Adapter { return newDriver(os.Stdout) })
}
