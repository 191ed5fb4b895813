package ngp

// Re-exported so callers of the root package can errors.Is against a
// single import instead of reaching into the component packages.
import (
	"github.com/nodeproto/ngp/route"
	"github.com/nodeproto/ngp/sfp"
	"github.com/nodeproto/ngp/socket"
)

var (
	ErrInvalidArgument    = socket.ErrInvalidArgument
	ErrWrongType          = socket.ErrWrongType
	ErrNoSocketSlot       = socket.ErrNoSocketSlot
	ErrNoEphemeralPort    = socket.ErrNoEphemeralPort
	ErrPortInUse          = socket.ErrPortInUse
	ErrNoPeer             = socket.ErrNoPeer
	ErrTimeout            = socket.ErrTimeout
	ErrReset              = socket.ErrReset
	ErrNotConnected       = socket.ErrNotConnected
	ErrHandshakeTimeout   = socket.ErrHandshakeTimeout
	ErrRetriesExhausted   = socket.ErrRetriesExhausted
	ErrPacketTooLarge     = socket.ErrPacketTooLarge
	ErrUnknownDestination = route.ErrUnknownDestination
	ErrMTUExceeded        = route.ErrMTUExceeded
	ErrFragmentTooLarge   = sfp.ErrTooLarge
	ErrFragmentGap        = sfp.ErrFragmentGap
)
