package tcc

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map"
)

// Client is a pooled connection to one Endpoint.
// closed and hasErrors are sticky: once set the pool destroys the client on return.
type Client struct {
	ID        string
	endpoint  Endpoint
	conn      RemoteConn
	closed    int32
	hasErrors int32
	keyspaces cmap.ConcurrentMap
}

func newClient(endpoint Endpoint, conn RemoteConn) *Client {
	return &Client{
		ID:        uuid.New().String(),
		endpoint:  endpoint,
		conn:      conn,
		keyspaces: cmap.New(),
	}
}

// Endpoint is the ring member this client is connected to.
func (c *Client) Endpoint() Endpoint { return c.endpoint }

// Conn is the underlying connection.
func (c *Client) Conn() RemoteConn { return c.conn }

// MarkAsError flags the client so it is never reused.
func (c *Client) MarkAsError() {
	atomic.StoreInt32(&c.hasErrors, 1)
}

func (c *Client) HasErrors() bool {
	return atomic.LoadInt32(&c.hasErrors) == 1
}

func (c *Client) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// Close closes the underlying connection once.
func (c *Client) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	return c.conn.Close()
}

// TokenToHostMap asks the connected node for the ring's token to host mapping.
func (c *Client) TokenToHostMap(ctx context.Context) (map[string]string, error) {
	if c.IsClosed() {
		return nil, ErrClientClosed
	}
	return c.conn.TokenToHostMap(ctx)
}

func (c *Client) addKeyspace(ks *Keyspace) {
	c.keyspaces.Set(ks.id, ks.name)
}

func (c *Client) removeKeyspace(ks *Keyspace) {
	c.keyspaces.Remove(ks.id)
}

// Keyspaces lists the names of keyspaces currently bound to this client.
func (c *Client) Keyspaces() []string {
	names := make([]string, 0, c.keyspaces.Count())
	for item := range c.keyspaces.IterBuffered() {
		names = append(names, item.Val.(string))
	}

	sort.Strings(names)
	return names
}
