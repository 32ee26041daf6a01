package ws

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Inbound event names understood by the connection loop. Anything else is
// ignored once the connection is registered.
const (
	eventRegister   = "register"
	eventNewPairing = "new_pairing"
)

type inboundMessage struct {
	Event    string    `json:"event"`
	Token    string    `json:"token,omitempty"`
	Identity string    `json:"identity,omitempty"`
	Role     *int      `json:"role,omitempty"`
	Platform flexInt64 `json:"platform,omitempty"`
	Product  *int64    `json:"product,omitempty"`
}

// flexInt64 accepts both JSON numbers and numeric strings; scanner firmware
// sends platform ids as strings.
type flexInt64 struct {
	value int64
	set   bool
}

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		f.value, f.set = n, true
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invalid numeric field: %s", string(b))
	}
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric field %q", s)
	}
	f.value, f.set = n, true
	return nil
}
