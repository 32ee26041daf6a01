package session

// Role describes what a connection is allowed to do on the wire. Producers
// (scanning devices) register as writers, dashboards as readers, combined
// channels as both.
type Role uint8

const (
	RoleNone   Role = 0
	RoleReader Role = 1 << 0
	RoleWriter Role = 1 << 1

	RoleReadWriter = RoleReader | RoleWriter
)

// CanRead reports whether the connection receives events.
func (r Role) CanRead() bool { return r&RoleReader != 0 }

// CanWrite reports whether the connection may submit pairings.
func (r Role) CanWrite() bool { return r&RoleWriter != 0 }

// Valid reports whether the value is inside the closed role set.
func (r Role) Valid() bool { return r <= RoleReadWriter }

func (r Role) String() string {
	switch r {
	case RoleReader:
		return "reader"
	case RoleWriter:
		return "writer"
	case RoleReadWriter:
		return "readwriter"
	default:
		return "none"
	}
}
