package session

import "sync"

// Metadata carries optional identity attributes resolved at registration time.
type Metadata struct {
	ID          *int64
	DisplayName string
}

// Snapshot is the register acknowledgment payload sent to a freshly accepted
// connection.
type Snapshot struct {
	Identity    string `json:"identity"`
	ID          *int64 `json:"id,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	InputCount  int    `json:"inputCount"`
	OutputCount int    `json:"outputCount"`
	Platform    *int64 `json:"platform"`
}

// Context is the per-identity session state: its connections and current
// platform binding. Contexts are created and destroyed by the Registry;
// connection list mutations happen only on the Register/Unregister paths.
type Context struct {
	key         string
	id          *int64
	displayName string

	mu       sync.RWMutex
	inputs   []Conn
	outputs  []Conn
	platform *int64
}

func newContext(key string, meta Metadata, platformHint *int64) *Context {
	return &Context{
		key:         key,
		id:          meta.ID,
		displayName: meta.DisplayName,
		platform:    platformHint,
	}
}

func (c *Context) Key() string { return c.key }

// Platform returns the current platform binding, if any.
func (c *Context) Platform() (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.platform == nil {
		return 0, false
	}
	return *c.platform, true
}

// RebindPlatform updates the binding and reports whether it changed. A first
// binding counts as a change.
func (c *Context) RebindPlatform(platform int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.platform != nil && *c.platform == platform {
		return false
	}
	c.platform = &platform
	return true
}

// Outputs returns a snapshot of the consumer connections.
func (c *Context) Outputs() []Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Conn, len(c.outputs))
	copy(out, c.outputs)
	return out
}

// Snapshot captures the current state for the register acknowledgment.
func (c *Context) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var platform *int64
	if c.platform != nil {
		p := *c.platform
		platform = &p
	}
	return Snapshot{
		Identity:    c.key,
		ID:          c.id,
		DisplayName: c.displayName,
		InputCount:  len(c.inputs),
		OutputCount: len(c.outputs),
		Platform:    platform,
	}
}

func (c *Context) boundTo(platform int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.platform != nil && *c.platform == platform
}

func (c *Context) empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.inputs) == 0 && len(c.outputs) == 0
}

func removeConn(list []Conn, conn Conn) ([]Conn, bool) {
	for i, candidate := range list {
		if candidate == conn {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}
