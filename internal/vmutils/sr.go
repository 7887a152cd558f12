package vmutils

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/containerd/errdefs"

	"torrentstore/internal/logging"
)

var (
	ErrSRNotFound    = fmt.Errorf("no storage repository to install guest images on: %w", errdefs.ErrNotFound)
	ErrUnsupportedSR = fmt.Errorf("storage repository has no local path: %w", errdefs.ErrFailedPrecondition)
)

// SRRecord is the subset of a XenAPI SR record the lookups read.
type SRRecord struct {
	UUID        string            `json:"uuid"`
	Type        string            `json:"type"`
	OtherConfig map[string]string `json:"other_config"`
	PBDs        []string          `json:"PBDs"`
}

// PBDRecord is the subset of a XenAPI PBD record the lookups read.
type PBDRecord struct {
	Host         string            `json:"host"`
	SR           string            `json:"SR"`
	DeviceConfig map[string]string `json:"device_config"`
}

// SRFinder locates the storage repository images are written to.
//
// MatchingFilter is either "default-sr:true" (the pool default SR) or
// "other-config:<key>=<value>" (first SR carrying that other-config entry
// with a PBD plugged on the session's host).
type SRFinder struct {
	MatchingFilter string
	BasePath       string
}

// FindSR returns the ref of the SR selected by MatchingFilter.
func (f SRFinder) FindSR(ctx context.Context, s Session) (string, error) {
	criteria, pattern, ok := strings.Cut(f.MatchingFilter, ":")
	if !ok {
		logging.L().Warn("sr_matching_filter does not respect formatting convention",
			"filter", f.MatchingFilter)
		return "", ErrSRNotFound
	}

	switch {
	case criteria == "other-config":
		key, value, _ := strings.Cut(pattern, "=")
		ref, err := f.findByOtherConfig(ctx, s, key, value)
		if err != nil || ref != "" {
			return ref, err
		}
	case criteria == "default-sr" && pattern == "true":
		var pools []string
		if err := s.CallXenAPI(ctx, "pool.get_all", &pools); err != nil {
			return "", err
		}
		if len(pools) > 0 {
			var ref string
			if err := s.CallXenAPI(ctx, "pool.get_default_SR", &ref, pools[0]); err != nil {
				return "", err
			}
			if ref != "" && ref != NullRef {
				return ref, nil
			}
		}
	}

	logging.L().Error("unable to find a storage repository to install guest images on",
		"filter", f.MatchingFilter)
	return "", ErrSRNotFound
}

func (f SRFinder) findByOtherConfig(ctx context.Context, s Session, key, value string) (string, error) {
	var srs map[string]SRRecord
	if err := s.CallXenAPI(ctx, "SR.get_all_records", &srs); err != nil {
		return "", err
	}
	host := s.HostRef()
	for ref, rec := range srs {
		if v, ok := rec.OtherConfig[key]; !ok || v != value {
			continue
		}
		for _, pbdRef := range rec.PBDs {
			var pbd PBDRecord
			if err := s.CallXenAPI(ctx, "PBD.get_record", &pbd, pbdRef); err != nil {
				return "", err
			}
			if pbd.Host == host {
				return ref, nil
			}
		}
	}
	return "", nil
}

// SRPath returns the filesystem path backing the selected SR on the
// session's host.
func (f SRFinder) SRPath(ctx context.Context, s Session) (string, error) {
	srRef, err := f.FindSR(ctx, s)
	if err != nil {
		return "", err
	}

	var pbds map[string]PBDRecord
	expr := fmt.Sprintf(`field "host"="%s" and field "SR"="%s"`, s.HostRef(), srRef)
	if err := s.CallXenAPI(ctx, "PBD.get_all_records_where", &pbds, expr); err != nil {
		return "", err
	}
	// older hosts leave device_config.path unset
	for _, pbd := range pbds {
		if p := pbd.DeviceConfig["path"]; p != "" {
			return p, nil
		}
	}

	var sr SRRecord
	if err := s.CallXenAPI(ctx, "SR.get_record", &sr, srRef); err != nil {
		return "", err
	}
	if sr.Type != "ext" && sr.Type != "nfs" {
		return "", fmt.Errorf("sr %s of type %q: %w", sr.UUID, sr.Type, ErrUnsupportedSR)
	}
	return path.Join(f.BasePath, sr.UUID), nil
}
