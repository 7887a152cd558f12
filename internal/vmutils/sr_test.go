package vmutils_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torrentstore/internal/fakexen"
	"torrentstore/internal/vmutils"
)

const host = "OpaqueRef:host"

func defaultFinder() vmutils.SRFinder {
	return vmutils.SRFinder{MatchingFilter: "default-sr:true", BasePath: "/var/run/sr-mount"}
}

func TestMakeUUIDStack(t *testing.T) {
	stack := vmutils.MakeUUIDStack()
	require.Len(t, stack, vmutils.MaxVDIChainSize)

	hex := regexp.MustCompile(`^[0-9a-f]{32}$`)
	seen := map[string]bool{}
	for _, id := range stack {
		assert.Regexp(t, hex, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestSRPath_DefaultSRWithDevicePath(t *testing.T) {
	s := fakexen.New(host).WithDefaultSR("OpaqueRef:sr", "/var/run/sr-mount/local")

	p, err := defaultFinder().SRPath(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "/var/run/sr-mount/local", p)

	var where []any
	for _, c := range s.Calls() {
		if c.Method == "PBD.get_all_records_where" {
			where = c.Args
		}
	}
	require.Len(t, where, 1)
	assert.Equal(t, `field "host"="OpaqueRef:host" and field "SR"="OpaqueRef:sr"`, where[0])
}

func TestSRPath_FallsBackToBasePath(t *testing.T) {
	s := fakexen.New(host).WithDefaultSR("OpaqueRef:sr", "")
	s.HandleXenAPI("PBD.get_all_records_where", func([]any) (any, error) {
		return map[string]any{"OpaqueRef:pbd": map[string]any{"host": host, "device_config": map[string]string{}}}, nil
	})
	s.HandleXenAPI("SR.get_record", func(args []any) (any, error) {
		return map[string]any{"uuid": "7f1c", "type": "nfs"}, nil
	})

	p, err := defaultFinder().SRPath(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "/var/run/sr-mount/7f1c", p)
}

func TestSRPath_RejectsNonFileSR(t *testing.T) {
	s := fakexen.New(host).WithDefaultSR("OpaqueRef:sr", "")
	s.HandleXenAPI("PBD.get_all_records_where", func([]any) (any, error) {
		return map[string]any{}, nil
	})
	s.HandleXenAPI("SR.get_record", func([]any) (any, error) {
		return map[string]any{"uuid": "7f1c", "type": "lvmoiscsi"}, nil
	})

	_, err := defaultFinder().SRPath(context.Background(), s)
	require.ErrorIs(t, err, vmutils.ErrUnsupportedSR)
	assert.True(t, errdefs.IsFailedPrecondition(err))
}

func TestFindSR_NullDefault(t *testing.T) {
	s := fakexen.New(host).WithDefaultSR(vmutils.NullRef, "")

	_, err := defaultFinder().FindSR(context.Background(), s)
	require.ErrorIs(t, err, vmutils.ErrSRNotFound)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestFindSR_MalformedFilter(t *testing.T) {
	s := fakexen.New(host)

	_, err := vmutils.SRFinder{MatchingFilter: "bogus"}.FindSR(context.Background(), s)
	require.ErrorIs(t, err, vmutils.ErrSRNotFound)
	assert.Empty(t, s.Calls())
}

func TestFindSR_OtherConfig(t *testing.T) {
	s := fakexen.New(host)
	s.HandleXenAPI("SR.get_all_records", func([]any) (any, error) {
		return map[string]any{
			"OpaqueRef:a": map[string]any{"other_config": map[string]string{"i18n-key": "local-storage"}, "PBDs": []string{"OpaqueRef:pa"}},
			"OpaqueRef:b": map[string]any{"other_config": map[string]string{"i18n-key": "other"}, "PBDs": []string{"OpaqueRef:pb"}},
		}, nil
	})
	s.HandleXenAPI("PBD.get_record", func(args []any) (any, error) {
		if args[0] == "OpaqueRef:pa" {
			return map[string]any{"host": host}, nil
		}
		return map[string]any{"host": "OpaqueRef:elsewhere"}, nil
	})

	f := vmutils.SRFinder{MatchingFilter: "other-config:i18n-key=local-storage"}
	ref, err := f.FindSR(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "OpaqueRef:a", ref)
}

func TestFindSR_PropagatesSessionError(t *testing.T) {
	s := fakexen.New(host)
	s.HandleXenAPI("pool.get_all", func([]any) (any, error) {
		return nil, assert.AnError
	})

	_, err := defaultFinder().FindSR(context.Background(), s)
	assert.ErrorIs(t, err, assert.AnError)
}
