// Package fakexen is an in-memory vmutils.Session. Tests use it in place of
// a hypervisor, and examples/hostagent serves it over gRPC for local runs.
package fakexen

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/containerd/errdefs"
)

type XenAPIFunc func(args []any) (any, error)

type PluginFunc func(params map[string]any) (any, error)

// Call is one recorded invocation. Params holds the caller's map as passed.
type Call struct {
	Plugin string
	Fn     string
	Method string
	Args   []any
	Params map[string]any
}

type Session struct {
	hostRef string

	mu      sync.Mutex
	xenapi  map[string]XenAPIFunc
	plugins map[string]PluginFunc
	calls   []Call
}

func New(hostRef string) *Session {
	return &Session{
		hostRef: hostRef,
		xenapi:  map[string]XenAPIFunc{},
		plugins: map[string]PluginFunc{},
	}
}

func (s *Session) HandleXenAPI(method string, fn XenAPIFunc) {
	s.mu.Lock()
	s.xenapi[method] = fn
	s.mu.Unlock()
}

func (s *Session) HandlePlugin(plugin, fn string, h PluginFunc) {
	s.mu.Lock()
	s.plugins[plugin+"."+fn] = h
	s.mu.Unlock()
}

// WithDefaultSR wires the lookups for a pool whose default SR is srRef with a
// PBD on this host exposing path.
func (s *Session) WithDefaultSR(srRef, path string) *Session {
	s.HandleXenAPI("pool.get_all", func([]any) (any, error) {
		return []string{"OpaqueRef:pool"}, nil
	})
	s.HandleXenAPI("pool.get_default_SR", func([]any) (any, error) {
		return srRef, nil
	})
	s.HandleXenAPI("PBD.get_all_records_where", func([]any) (any, error) {
		return map[string]any{
			"OpaqueRef:pbd": map[string]any{
				"host":          s.hostRef,
				"SR":            srRef,
				"device_config": map[string]string{"path": path},
			},
		}, nil
	})
	return s
}

func (s *Session) HostRef() string { return s.hostRef }

func (s *Session) CallXenAPI(_ context.Context, method string, out any, args ...any) error {
	s.mu.Lock()
	fn, ok := s.xenapi[method]
	s.calls = append(s.calls, Call{Method: method, Args: args})
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("fakexen: MESSAGE_METHOD_UNKNOWN %s: %w", method, errdefs.ErrNotImplemented)
	}
	res, err := fn(args)
	if err != nil {
		return err
	}
	return roundTrip(res, out)
}

func (s *Session) CallPluginSerialized(_ context.Context, plugin, fn string, params map[string]any, out any) error {
	s.mu.Lock()
	h, ok := s.plugins[plugin+"."+fn]
	s.calls = append(s.calls, Call{Plugin: plugin, Fn: fn, Params: params})
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("fakexen: no plugin %s.%s: %w", plugin, fn, errdefs.ErrNotFound)
	}
	// handlers see params as the plugin would: decoded from JSON
	var wire map[string]any
	if err := roundTrip(params, &wire); err != nil {
		return err
	}
	res, err := h(wire)
	if err != nil {
		return err
	}
	return roundTrip(res, out)
}

// Calls returns a copy of every call recorded so far.
func (s *Session) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// PluginCalls filters Calls down to plugin invocations.
func (s *Session) PluginCalls() []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Plugin != "" {
			out = append(out, c)
		}
	}
	return out
}

// roundTrip decodes through JSON so fakes observe the same typing rules as
// the wire sessions.
func roundTrip(res, out any) error {
	if out == nil {
		return nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
