package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Ping checks daemon liveness.
func (c *Client) Ping() (*PingResponse, error) {
	var resp PingResponse
	if err := c.client.Call("Courier.Ping", PingRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Courier.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BatchAdd submits a relay batch.
func (c *Client) BatchAdd(req BatchAddRequest) (*BatchAddResponse, error) {
	var resp BatchAddResponse
	if err := c.client.Call("Courier.BatchAdd", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BatchPause pauses a user's batch.
func (c *Client) BatchPause(userID int64) (*BatchControlResponse, error) {
	var resp BatchControlResponse
	if err := c.client.Call("Courier.BatchPause", BatchControlRequest{UserID: userID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BatchResume resumes a user's batch.
func (c *Client) BatchResume(userID int64) (*BatchControlResponse, error) {
	var resp BatchControlResponse
	if err := c.client.Call("Courier.BatchResume", BatchControlRequest{UserID: userID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BatchCancel cancels a user's batch.
func (c *Client) BatchCancel(userID int64) (*BatchControlResponse, error) {
	var resp BatchControlResponse
	if err := c.client.Call("Courier.BatchCancel", BatchControlRequest{UserID: userID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns every active queue.
func (c *Client) QueueList() (*QueueListResponse, error) {
	var resp QueueListResponse
	if err := c.client.Call("Courier.QueueList", QueueListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueDescribe returns one user's queue.
func (c *Client) QueueDescribe(userID int64) (*QueueDescribeResponse, error) {
	var resp QueueDescribeResponse
	if err := c.client.Call("Courier.QueueDescribe", QueueDescribeRequest{UserID: userID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Courier.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
