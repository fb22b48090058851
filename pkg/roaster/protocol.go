package roaster

// Command payloads written to the OUT endpoint.
var (
	cmdRequestStats  = []byte{0x30, 0x01}
	cmdRequestStatus = []byte{0x30, 0x03}
	cmdPress         = []byte{0x30, 0x01, 0x00, 0x00}
	cmdFanDown       = []byte{0x31, 0x02, 0xAA, 0xAA}
	cmdFanUp         = []byte{0x31, 0x01, 0xAA, 0xAA}
	cmdHeaterDown    = []byte{0x34, 0x02, 0xAA, 0xAA}
	cmdHeaterUp      = []byte{0x34, 0x01, 0xAA, 0xAA}
)

const cmdDrumSet = 0x32

// drumSetCommand builds the absolute drum speed command.
func drumSetCommand(level int) []byte {
	return []byte{cmdDrumSet, 0x01, byte(level), 0x00}
}
