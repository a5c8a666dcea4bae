package mailbox

// Frame is a CAN frame as seen at the mailbox boundary. Grounded on the
// teacher's canopen.Frame (bus.go), but RTR and Extended are explicit bool
// fields instead of bits packed into a Flags byte — the teacher's own code
// has to mask CAN_RTR_FLAG/CAN_EFF_FLAG out of a raw ID at several call
// sites; making the two request/addressing properties first-class avoids
// that repeated unpacking throughout the mailbox and SDO/PDO dispatch code.
type Frame struct {
	ID       uint32
	Extended bool
	RTR      bool
	DLC      uint8
	Data     [8]byte
}

// Bytes returns the frame payload trimmed to its declared DLC.
func (f Frame) Bytes() []byte {
	if int(f.DLC) > len(f.Data) {
		return f.Data[:]
	}
	return f.Data[:f.DLC]
}
