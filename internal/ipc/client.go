package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const dialTimeout = 2 * time.Second

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// DialWait keeps dialing with exponential backoff until the daemon accepts
// the connection, maxWait elapses, or ctx ends. Only a missing socket or a
// refused connection is retried.
func DialWait(ctx context.Context, path string, maxWait time.Duration) (*Client, error) {
	if maxWait <= 0 {
		return Dial(path)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = time.Second
	bo.MaxElapsedTime = maxWait

	var client *Client
	err := backoff.Retry(func() error {
		c, err := Dial(path)
		if err != nil {
			if isDaemonDown(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		client = c
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w", path, err)
	}
	return client, nil
}

func isDaemonDown(err error) bool {
	return errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED)
}

// IsDaemonDown reports whether err means no daemon is listening.
func IsDaemonDown(err error) bool {
	return isDaemonDown(err)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		err := c.conn.Close()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(serviceName+"."+method, req, resp)
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OpenReview starts a review session on the daemon.
func (c *Client) OpenReview(req OpenReviewRequest) (*OpenReviewResponse, error) {
	var resp OpenReviewResponse
	if err := c.call("OpenReview", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NextSnapshot long-polls for the next update of a session.
func (c *Client) NextSnapshot(req NextSnapshotRequest) (*NextSnapshotResponse, error) {
	var resp NextSnapshotResponse
	if err := c.call("NextSnapshot", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CloseReview ends a session.
func (c *Client) CloseReview(sessionID string) (*CloseReviewResponse, error) {
	var resp CloseReviewResponse
	if err := c.call("CloseReview", CloseReviewRequest{SessionID: sessionID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Delete hides an item from every review, removing it when purge is set.
func (c *Client) Delete(id int64, purge bool) (*DeleteResponse, error) {
	var resp DeleteResponse
	if err := c.call("Delete", DeleteRequest{ID: id, Purge: purge}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResumeCapture asks the daemon to resume capture with token.
func (c *Client) ResumeCapture(token string) (*ResumeCaptureResponse, error) {
	var resp ResumeCaptureResponse
	if err := c.call("ResumeCapture", ResumeCaptureRequest{Token: token}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListMedia returns the newest media records.
func (c *Client) ListMedia(limit int) (*ListMediaResponse, error) {
	var resp ListMediaResponse
	if err := c.call("ListMedia", ListMediaRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
