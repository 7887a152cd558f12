// Package vmutils holds the hypervisor-side helpers shared by image stores:
// the Session port, the scratch UUID stack handed to dom0 plugins and the
// storage repository lookups.
package vmutils

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// MaxVDIChainSize bounds how many VHDs a plugin may need to name while
// unpacking an image chain.
const MaxVDIChainSize = 16

// NullRef is the XenAPI sentinel for "no object".
const NullRef = "OpaqueRef:NULL"

// Session is a live connection to a hypervisor host. Implementations must be
// safe for concurrent use.
type Session interface {
	// CallXenAPI invokes a XenAPI method with the session ref prepended and
	// decodes the result into out (which may be nil).
	CallXenAPI(ctx context.Context, method string, out any, args ...any) error
	// CallPluginSerialized runs fn of a dom0 plugin with params as keyword
	// arguments and decodes the plugin's return value into out.
	CallPluginSerialized(ctx context.Context, plugin, fn string, params map[string]any, out any) error
	// HostRef is the ref of the host this session executes plugins on.
	HostRef() string
}

// MakeUUIDStack returns MaxVDIChainSize fresh identifiers in dashless hex
// form. Plugins pop from it to name the VHDs they create.
func MakeUUIDStack() []string {
	stack := make([]string, MaxVDIChainSize)
	for i := range stack {
		stack[i] = strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	return stack
}
