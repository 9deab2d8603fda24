package proxy

// Metadata is the metadata proxy: its GetConnection returns the owning
// connection proxy, never the raw connection, the same rule every
// descendant proxy follows.
type Metadata struct {
	conn *Conn
}

// Connection returns the owning connection proxy.
func (m *Metadata) Connection() *Conn { return m.conn }
