package resource

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// OwnershipState is the externally observed ownership of a resource.
type OwnershipState string

const (
	StateFree              OwnershipState = "free"
	StateReserved          OwnershipState = "reserved"
	StateLocked            OwnershipState = "locked"
	StateReservedAndLocked OwnershipState = "reserved_and_locked"
)

// String returns the string representation.
func (s OwnershipState) String() string {
	return string(s)
}

// IsHeld reports whether the state carries any owner.
func (s OwnershipState) IsHeld() bool {
	return s != StateFree
}

// lockCauseLayout renders timestamps as a medium date with a short time.
const lockCauseLayout = "Jan 2, 2006, 3:04 PM"

const unknownTimestamp = "<unknown>"

// OwnershipState returns the state tracked by the ownership machine. It
// falls back to the reservation and lock fields when the machine is
// unavailable.
func (r *Resource) OwnershipState() OwnershipState {
	if s := r.machine.CurrentState(); s != "" {
		return OwnershipState(s)
	}
	return r.fieldState()
}

// VerifyState reports ErrStateMismatch when the ownership machine disagrees
// with the reservation and lock fields, and resynchronises the machine from
// the fields.
func (r *Resource) VerifyState() error {
	want := r.fieldState()
	got := r.machine.CurrentState()
	if got == "" || OwnershipState(got) == want {
		return nil
	}
	r.machine.Sync(want)
	return fmt.Errorf("%w: [%s] machine is %s, fields say %s", ErrStateMismatch, r.name, got, want)
}

func (r *Resource) fieldState() OwnershipState {
	switch {
	case r.IsReserved() && r.IsLocked():
		return StateReservedAndLocked
	case r.IsReserved():
		return StateReserved
	case r.IsLocked():
		return StateLocked
	default:
		return StateFree
	}
}

// Reserve holds the resource for holder, independent of any running task.
// A blank holder normalizes to absent and clears any existing reservation.
// No conflict check is performed: reserving an already reserved resource
// overwrites the holder and timestamp.
func (r *Resource) Reserve(holder string) {
	holder = strings.TrimSpace(holder)
	if holder == "" {
		if r.IsReserved() {
			r.Unreserve()
		}
		return
	}
	r.reservedBy = holder
	r.reservedAt = timePtr(r.now())
	r.carriedAt = nil
	r.machine.Send(EventReserve)
	r.record(EventNameReserved, map[string]any{"holder": holder})
}

// Unreserve releases the reservation and clears the stolen flag.
// A lock held by a running task keeps its own timestamp.
func (r *Resource) Unreserve() {
	holder := r.reservedBy
	r.reservedBy = ""
	r.reservedAt = nil
	r.carriedAt = nil
	r.stolen = false
	r.machine.Send(EventUnreserve)
	if holder != "" {
		r.record(EventNameUnreserved, map[string]any{"holder": holder})
	}
}

// ReservedBy returns the holder of the reservation, or "" if not reserved.
func (r *Resource) ReservedBy() string {
	return r.reservedBy
}

// SetReservedBy sets the holder without touching timestamps. Blank values
// clear the reservation. Used when restoring persisted state.
func (r *Resource) SetReservedBy(holder string) {
	r.reservedBy = strings.TrimSpace(holder)
	if r.reservedBy == "" {
		r.stolen = false
	}
	r.machine.Sync(r.fieldState())
}

// IsReserved reports whether a holder is present.
func (r *Resource) IsReserved() bool {
	return r.reservedBy != ""
}

// MarkStolen records that the reservation was forcibly taken from its
// original holder. The caller must already hold the resource reserved.
func (r *Resource) MarkStolen() {
	r.stolen = true
	r.record(EventNameStolen, map[string]any{"holder": r.reservedBy})
}

// SetStolen sets the stolen flag directly. Used when restoring state.
func (r *Resource) SetStolen(stolen bool) {
	r.stolen = stolen
}

// IsStolen reports whether the reservation was stolen.
func (r *Resource) IsStolen() bool {
	return r.stolen
}

// SetBuild locks the resource for a running build. A nil build unlocks it.
func (r *Resource) SetBuild(build Build) {
	if build == nil {
		r.clearBuild()
		return
	}
	r.build = build
	r.buildID = build.ExternalID()
	r.lockedAt = timePtr(r.now())
	r.carriedAt = nil
	r.machine.Send(EventLock)
	r.record(EventNameLocked, map[string]any{"build": r.buildID})
}

// SetBuildID records the durable build identifier without resolving it.
// The live handle is resolved on first access. An empty id unlocks.
func (r *Resource) SetBuildID(externalID string) {
	if externalID == "" {
		r.clearBuild()
		return
	}
	if externalID != r.buildID {
		r.build = nil
	}
	r.buildID = externalID
	r.machine.Sync(r.fieldState())
}

func (r *Resource) clearBuild() {
	buildID := r.buildID
	r.build = nil
	r.buildID = ""
	r.lockedAt = nil
	r.carriedAt = nil
	r.machine.Send(EventUnlock)
	if buildID != "" {
		r.record(EventNameUnlocked, map[string]any{"build": buildID})
	}
}

// IsLocked reports whether a running build holds the resource.
func (r *Resource) IsLocked() bool {
	return r.buildID != ""
}

// BuildID returns the durable identifier of the holding build.
func (r *Resource) BuildID() string {
	return r.buildID
}

// Build resolves the holding build, caching the handle after the first
// successful resolution. It returns nil when the resource is not locked.
func (r *Resource) Build(ctx context.Context) (Build, error) {
	if r.build != nil || r.buildID == "" {
		return r.build, nil
	}
	if r.buildResolver == nil {
		return nil, nil
	}
	build, err := r.buildResolver.ResolveBuild(ctx, r.buildID)
	if err != nil {
		return nil, fmt.Errorf("resolving build %s: %w", r.buildID, err)
	}
	r.build = build
	return build, nil
}

// BuildName returns the display name of the holding build, or "".
func (r *Resource) BuildName(ctx context.Context) string {
	build, err := r.Build(ctx)
	if err != nil || build == nil {
		return ""
	}
	return build.DisplayName()
}

// ReservedTimestamp returns the timestamp of the current ownership cause:
// the reservation first, then the lock. It returns nil when free, unless a
// timestamp was carried over from a previous instance.
func (r *Resource) ReservedTimestamp() *time.Time {
	var ts *time.Time
	switch {
	case r.IsReserved():
		ts = r.reservedAt
	case r.IsLocked():
		ts = r.lockedAt
	default:
		ts = r.carriedAt
	}
	if ts == nil {
		return nil
	}
	return timePtr(*ts)
}

// SetReservedTimestamp overwrites the timestamp of the current ownership
// cause. On a free resource the value is carried until the next transition.
func (r *Resource) SetReservedTimestamp(ts *time.Time) {
	var v *time.Time
	if ts != nil {
		v = timePtr(*ts)
	}
	switch {
	case r.IsReserved():
		r.reservedAt = v
	case r.IsLocked():
		r.lockedAt = v
	default:
		r.carriedAt = v
	}
}

// LockCause describes why the resource is held, for display and audit.
// A reservation takes priority over a lock. It returns "" when free.
func (r *Resource) LockCause() string {
	timestamp := unknownTimestamp
	if ts := r.ReservedTimestamp(); ts != nil {
		timestamp = ts.Format(lockCauseLayout)
	}
	if r.IsReserved() {
		return fmt.Sprintf("[%s] is reserved by %s at %s", r.name, r.reservedBy, timestamp)
	}
	if r.IsLocked() {
		return fmt.Sprintf("[%s] is locked by %s at %s", r.name, r.buildID, timestamp)
	}
	return ""
}

// ReservedByEmail returns the notification address of the holder, or "" if
// the resource is not reserved or the holder has no known address.
func (r *Resource) ReservedByEmail(ctx context.Context) string {
	if !r.IsReserved() || r.users == nil {
		return ""
	}
	user, err := r.users.LookupUser(ctx, r.reservedBy)
	if err != nil || user == nil {
		return ""
	}
	return user.Email
}

// Reset returns the resource to the free state: unreserve, unqueue and
// unlock.
func (r *Resource) Reset() {
	r.Unreserve()
	r.Unqueue()
	r.SetBuild(nil)
	r.machine.Send(EventReset)
	r.record(EventNameReset, nil)
}

// CopyUnconfigurablePropertiesFrom re-applies the live timestamp and note of
// a previous instance after a configuration reload. Holder, build and queue
// claim are not copied.
func (r *Resource) CopyUnconfigurablePropertiesFrom(other *Resource) {
	if other == nil {
		return
	}
	r.SetReservedTimestamp(other.ReservedTimestamp())
	r.SetNote(other.Note())
}

// CheckReservable returns ErrAlreadyHeld when the resource is reserved by
// another holder or locked by a build.
func (r *Resource) CheckReservable(holder string) error {
	holder = strings.TrimSpace(holder)
	held := false
	switch r.OwnershipState() {
	case StateLocked, StateReservedAndLocked:
		held = true
	case StateReserved:
		held = r.reservedBy != holder
	}
	if held {
		return &HoldError{Resource: r.name, Holder: holder, Cause: r.LockCause(), kind: ErrAlreadyHeld}
	}
	return nil
}

// CheckHeldBy returns ErrNotHeld unless holder holds the reservation.
func (r *Resource) CheckHeldBy(holder string) error {
	switch r.OwnershipState() {
	case StateReserved, StateReservedAndLocked:
		if r.reservedBy == strings.TrimSpace(holder) {
			return nil
		}
	}
	return &HoldError{Resource: r.name, Holder: holder, kind: ErrNotHeld}
}
