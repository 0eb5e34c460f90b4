// internal/status/encode.go
package status

// Encode converts a Snapshot into the live part of a device status block.
// Layout is protocol-locked. The device name slots are left to the writer.
// No IO. No side effects.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, SlotsPerDevice)

	regs[SlotHealthCode] = s.Health
	regs[SlotLastErrorCode] = s.LastErrorCode
	regs[SlotSecondsInError] = s.SecondsInError
	regs[SlotSoftReinits] = s.SoftReinits
	regs[SlotHardResets] = s.HardResets
	regs[SlotProbeIn] = s.ProbeIn

	return regs
}
