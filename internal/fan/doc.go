// Package fan holds the fan's desired state and reconciles it against
// the physical device.
//
// The fan itself is one-way: IR commands go out, nothing comes back.
// The package therefore keeps two copies of state. "Current" is what
// the user last asked for and is updated immediately, so reads always
// reflect the latest request. "Previous" is what we believe the fan was
// last told. Reconciliation diffs the two and picks the single IR
// signal that moves the device from one to the other.
//
// Writes are debounced per property with a cancel-and-replace timer:
// a slider drag that produces a dozen speed values within the window
// collapses to one transmission of the final value. Each property (on,
// speed) owns its own timer slot, so toggling power does not postpone a
// pending speed settle.
//
// The fan's remote has no proportional speed control, only three
// buttons. A percentage maps to a band: below the medium threshold is
// low, below the high threshold is medium, the rest is high. Both
// bounds are inclusive on the upper side, so with defaults 33 and 66 a
// request of 33 lands in medium and 66 in high.
//
// Once a settle's transmission attempt completes, "previous" advances
// to "current" whether or not the transmission succeeded. The device
// gives no acknowledgement, so
// retrying forever on a failure would just replay stale commands;
// accepting the optimistic state keeps the next diff meaningful and the
// user can always re-issue the command.
package fan
