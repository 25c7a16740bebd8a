package ipc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client wraps a grpc.ClientConn bound to the json codec, standing in for
// a generated *RootClient the way pkg/client.Client wraps proto.WarrenAPIClient.
// There is no TLS here: the root service is reached over a locally-trusted
// transport, the same trust boundary a D-Bus system-bus method call has.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr (host:port or unix:/path) over plaintext grpc.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("ipc: dialing %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/Status", &StatusRequest{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Deployments(ctx context.Context) (*DeploymentsResponse, error) {
	out := new(DeploymentsResponse)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/Deployments", &DeploymentsRequest{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) InvokeMethod(ctx context.Context, osname, method string, options map[string]any) (*MethodResponse, error) {
	out := new(MethodResponse)
	req := &MethodRequest{OSName: osname, Method: method, Options: options}
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/InvokeMethod", req, out); err != nil {
		return nil, err
	}
	return out, nil
}
