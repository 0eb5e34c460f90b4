// internal/status/constants.go
package status

// Device Status Block layout constants.
// These values define the register protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of logical slots per device.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotHealthCode holds the device health state.
const SlotHealthCode = 0

// SlotLastErrorCode holds the last raw error code (errno where one exists).
const SlotLastErrorCode = 1

// SlotSecondsInError holds the duration (in seconds) the device has been in error.
const SlotSecondsInError = 2

// SlotSoftReinits counts software re-inits of the device binding.
const SlotSoftReinits = 3

// SlotHardResets counts hard bus resets performed by this process.
const SlotHardResets = 4

// SlotProbeIn holds the seconds left until a disabled device is probed.
const SlotProbeIn = 5

// ---- RESERVED RANGE ----

// Slots 6-10 are reserved for future use.
const (
	SlotReservedStart = 6
	SlotReservedEnd   = 10
)

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
// Device name is always placed at the END of the status block.
const SlotDeviceNameStart = 11

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the device name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for device name.
const DeviceNameMaxChars = 16

// CounterMax is where every counter slot saturates.
const CounterMax = 65535

// ---- HEALTH CODES ----

// HealthUnknown represents the boot state, before the first transaction.
const HealthUnknown uint16 = 0

// HealthOK represents a device whose last transaction succeeded.
const HealthOK uint16 = 1

// HealthError represents a device whose last transaction failed.
const HealthError uint16 = 2

// HealthStale represents data that could not be refreshed because other
// processes kept the bus busy; the device itself is not known to be faulty.
const HealthStale uint16 = 3

// HealthDisabled represents a device in its post-failure cooldown.
const HealthDisabled uint16 = 4
