// Package rtid holds the identifier primitives shared across the resource
// accounting and application-lifecycle packages, kept separate so those
// packages can reference each other's keys without an import cycle.
package rtid

import "fmt"

// AppUID packs (pid, exc_id) into a single comparable identifier, matching
// the wire identity applications are enrolled under.
type AppUID uint64

// MakeAppUID packs a process id and an execution-context index into a UID.
// The exc id occupies the low 8 bits, leaving room for up to 256 contexts
// per pid.
func MakeAppUID(pid int32, excID uint8) AppUID {
	return AppUID(uint64(pid)<<8 | uint64(excID))
}

// PID extracts the process id portion of the UID.
func (u AppUID) PID() int32 { return int32(u >> 8) }

// ExcID extracts the execution-context portion of the UID.
func (u AppUID) ExcID() uint8 { return uint8(u) }

func (u AppUID) String() string {
	return fmt.Sprintf("%d:%d", u.PID(), u.ExcID())
}

// ViewToken names a resource-accounting view. Token 0 is always the system
// view: the set of bookings currently committed and visible to every caller.
type ViewToken uint32

// SystemView is the canonical, always-present view token.
const SystemView ViewToken = 0
