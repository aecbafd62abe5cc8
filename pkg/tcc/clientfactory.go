package tcc

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ClientFactory makes Clients for a KeyedObjectPool keyed by Endpoint.
type ClientFactory struct {
	remote         RemoteClient
	connectTimeout time.Duration
	logger         *zap.Logger
}

// NewClientFactory creates a ClientFactory. A zero connectTimeout leaves Open unbounded.
func NewClientFactory(remote RemoteClient, connectTimeout time.Duration) *ClientFactory {
	return NewClientFactoryWithLogger(remote, connectTimeout, nil)
}

// NewClientFactoryWithLogger creates a ClientFactory that logs connection churn.
func NewClientFactoryWithLogger(remote RemoteClient, connectTimeout time.Duration, logger *zap.Logger) *ClientFactory {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ClientFactory{
		remote:         remote,
		connectTimeout: connectTimeout,
		logger:         logger,
	}
}

func (cf *ClientFactory) Make(endpoint Endpoint) (*Client, error) {
	ctx := context.Background()
	if cf.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cf.connectTimeout)
		defer cancel()
	}

	conn, err := cf.remote.Open(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("opening connection to %s: %w", endpoint, err)
	}

	client := newClient(endpoint, conn)
	cf.logger.Debug("client connected", zap.String("endpoint", endpoint.String()), zap.String("client", client.ID))

	return client, nil
}

func (cf *ClientFactory) Destroy(endpoint Endpoint, client *Client) error {
	cf.logger.Debug("client destroyed",
		zap.String("endpoint", endpoint.String()),
		zap.String("client", client.ID),
		zap.Bool("hasErrors", client.HasErrors()))

	return client.Close()
}

func (cf *ClientFactory) Activate(endpoint Endpoint, client *Client) error {
	if client.IsClosed() {
		return ErrClientClosed
	}
	return nil
}

func (cf *ClientFactory) Passivate(endpoint Endpoint, client *Client) bool {
	return !client.IsClosed()
}

func (cf *ClientFactory) Validate(endpoint Endpoint, client *Client) bool {
	return !client.IsClosed() && !client.HasErrors()
}
