// Package xenapi is a minimal XenAPI client speaking JSON-RPC 2.0 to a pool
// master or standalone host. It implements vmutils.Session.
package xenapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"torrentstore/internal/logging"
)

const (
	apiVersion     = "1.0"
	originator     = "torrentstore"
	pluginFailure  = "XENAPI_PLUGIN_FAILURE"
	pluginSuffix   = ".py"
	defaultTimeout = 10 * time.Minute
)

type Options struct {
	URL                string
	Username           string
	Password           string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Failure is an error reported by XenAPI itself.
type Failure struct {
	Method  string
	Code    int
	Message string
	Details []string
}

func (f *Failure) Error() string {
	if len(f.Details) == 0 {
		return fmt.Sprintf("xenapi %s: %s", f.Method, f.Message)
	}
	return fmt.Sprintf("xenapi %s: %s %v", f.Method, f.Message, f.Details)
}

// PluginError is raised by a dom0 plugin and unwrapped from
// XENAPI_PLUGIN_FAILURE.
type PluginError struct {
	Plugin  string
	Fn      string
	Type    string
	Message string
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s.%s: %s: %s", e.Plugin, e.Fn, e.Type, e.Message)
}

type Session struct {
	client   *resty.Client
	ref      string
	hostRef  string
	hostUUID string
	seq      atomic.Uint64
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      string `json:"id"`
}

type rpcError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Data    []string `json:"data"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Login opens a session and resolves the host plugins will run on.
func Login(ctx context.Context, opts Options) (*Session, error) {
	if opts.URL == "" {
		return nil, errors.New("xenapi: no url configured")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.URL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if opts.InsecureSkipVerify {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec
	}

	s := &Session{client: client}
	if err := s.rpc(ctx, "session.login_with_password", &s.ref,
		opts.Username, opts.Password, apiVersion, originator); err != nil {
		return nil, err
	}
	if err := s.CallXenAPI(ctx, "session.get_this_host", &s.hostRef, s.ref); err != nil {
		return nil, err
	}
	if err := s.CallXenAPI(ctx, "host.get_uuid", &s.hostUUID, s.hostRef); err != nil {
		return nil, err
	}
	logging.L().Info("xenapi session established", "url", opts.URL, "host", s.hostUUID)
	return s, nil
}

func (s *Session) HostRef() string  { return s.hostRef }
func (s *Session) HostUUID() string { return s.hostUUID }

// CallXenAPI prepends the session ref to args.
func (s *Session) CallXenAPI(ctx context.Context, method string, out any, args ...any) error {
	return s.rpc(ctx, method, out, append([]any{s.ref}, args...)...)
}

// CallPlugin runs fn of a dom0 plugin on this session's host.
func (s *Session) CallPlugin(ctx context.Context, plugin, fn string, args map[string]string) (string, error) {
	call := make(map[string]string, len(args)+1)
	for k, v := range args {
		call[k] = v
	}
	// pools route the call by host_uuid
	call["host_uuid"] = s.hostUUID
	if !strings.HasSuffix(plugin, pluginSuffix) {
		plugin += pluginSuffix
	}

	var rv string
	err := s.CallXenAPI(ctx, "host.call_plugin", &rv, s.hostRef, plugin, fn, call)
	var f *Failure
	if errors.As(err, &f) && f.Message == pluginFailure {
		pe := &PluginError{Plugin: plugin, Fn: fn}
		if len(f.Details) > 1 {
			pe.Type = f.Details[1]
		}
		if len(f.Details) > 2 {
			pe.Message = f.Details[2]
		}
		return "", pe
	}
	return rv, err
}

// CallPluginSerialized passes params as keyword arguments and decodes the
// plugin's JSON return value into out.
func (s *Session) CallPluginSerialized(ctx context.Context, plugin, fn string, params map[string]any, out any) error {
	payload, err := json.Marshal(map[string]any{"args": []any{}, "kwargs": params})
	if err != nil {
		return err
	}
	rv, err := s.CallPlugin(ctx, plugin, fn, map[string]string{"params": string(payload)})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(rv), out); err != nil {
		return fmt.Errorf("xenapi: decode %s.%s result: %w", plugin, fn, err)
	}
	return nil
}

// Close logs the session out.
func (s *Session) Close(ctx context.Context) error {
	if s.ref == "" {
		return nil
	}
	err := s.rpc(ctx, "session.logout", nil, s.ref)
	s.ref = ""
	return err
}

func (s *Session) rpc(ctx context.Context, method string, out any, params ...any) error {
	if params == nil {
		params = []any{}
	}
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      strconv.FormatUint(s.seq.Add(1), 10),
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/jsonrpc")
	if err != nil {
		return fmt.Errorf("xenapi %s: %w", method, err)
	}
	if resp.IsError() {
		return fmt.Errorf("xenapi %s: http status %d", method, resp.StatusCode())
	}

	var rr rpcResponse
	if err := json.Unmarshal(resp.Body(), &rr); err != nil {
		return fmt.Errorf("xenapi %s: decode response: %w", method, err)
	}
	if rr.Error != nil {
		return &Failure{Method: method, Code: rr.Error.Code, Message: rr.Error.Message, Details: rr.Error.Data}
	}
	if out == nil || len(rr.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rr.Result, out); err != nil {
		return fmt.Errorf("xenapi %s: decode result: %w", method, err)
	}
	return nil
}
