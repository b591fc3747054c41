// Package vehicle defines the identity and lifecycle of a single car moving
// through the paint shop: oven assignment, buffer placement, and the
// terminal painted state.
package vehicle

// Color is one of the twelve paint colors the shop runs, C1 through C12.
type Color string

const (
	C1  Color = "C1"
	C2  Color = "C2"
	C3  Color = "C3"
	C4  Color = "C4"
	C5  Color = "C5"
	C6  Color = "C6"
	C7  Color = "C7"
	C8  Color = "C8"
	C9  Color = "C9"
	C10 Color = "C10"
	C11 Color = "C11"
	C12 Color = "C12"
)

// Oven identifies which of the two paint ovens produced a vehicle.
type Oven string

const (
	O1 Oven = "O1"
	O2 Oven = "O2"
)

// Status is the lifecycle state of a vehicle as tracked by the core. Only
// WAITING, IN_BUFFER, and PAINTED are ever set by the core; IN_OVEN and
// ON_CONVEYOR are reserved for external state the core never assigns.
type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusInOven     Status = "IN_OVEN"
	StatusInBuffer   Status = "IN_BUFFER"
	StatusOnConveyor Status = "ON_CONVEYOR"
	StatusPainted    Status = "PAINTED"
)

// Vehicle is created externally (by the input generator, or loaded back
// from persistence) and mutated by the Allocator on buffer entry and by the
// Tick Engine, which sets its oven on Enqueue and marks it painted once the
// Conveyor Dispatcher has drained it.
type Vehicle struct {
	CarID    int
	Color    Color
	Oven     Oven
	Buffer   string // lane id, empty when not assigned
	Status   Status
	BatchID  string // empty until assigned at buffer entry
	Priority int
}

// Fields is a partial update to a vehicle record, used for persistence
// writes where only a subset of fields changed.
type Fields struct {
	Buffer  *string
	Status  *Status
	BatchID *string
}

// Update pairs a car id with the fields that changed, for batched writes.
type Update struct {
	CarID  int
	Fields Fields
}
