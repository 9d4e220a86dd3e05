package ipc

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"zedcapd/internal/camera"
	"zedcapd/internal/capture"
	"zedcapd/internal/video"
)

// Client is a synchronous control-socket client. Safe for concurrent use;
// requests are serialized on the single connection.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	nextID atomic.Uint32
}

// Dial connects to the daemon's control socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// roundTrip sends one request and decodes the matching response into out.
func (c *Client) roundTrip(reqType, respType MessageType, req, out any) error {
	id := c.nextID.Add(1)
	msg, err := Marshal(reqType, id, req)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := msg.Write(c.conn); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	resp, err := ReadMessage(c.conn)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.Header.RequestID != id {
		return fmt.Errorf("response id mismatch: got %d, want %d", resp.Header.RequestID, id)
	}

	if resp.Header.Type == MsgError {
		var e ErrorResponse
		if err := json.Unmarshal(resp.Payload, &e); err != nil {
			return fmt.Errorf("daemon error (undecodable): %w", err)
		}
		return &DaemonError{Code: e.Code, Message: e.Message}
	}
	if resp.Header.Type != respType {
		return fmt.Errorf("unexpected response type: %#04x", uint16(resp.Header.Type))
	}

	if out != nil && len(resp.Payload) > 0 {
		if err := json.Unmarshal(resp.Payload, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// DaemonError is a structured failure reported by the daemon.
type DaemonError struct {
	Code    int
	Message string
}

func (e *DaemonError) Error() string {
	return e.Message
}

// Ping checks daemon liveness.
func (c *Client) Ping() error {
	return c.roundTrip(MsgPing, MsgPong, nil, nil)
}

// Status fetches the daemon status snapshot.
func (c *Client) Status() (StatusResponse, error) {
	var resp StatusResponse
	err := c.roundTrip(MsgStatus, MsgStatusResp, nil, &resp)
	return resp, err
}

// StartSession starts the capture session.
func (c *Client) StartSession() error {
	return c.roundTrip(MsgStartSession, MsgStartResp, nil, nil)
}

// StopSession stops the capture session.
func (c *Client) StopSession() error {
	return c.roundTrip(MsgStopSession, MsgStopResp, nil, nil)
}

// PauseSession pauses the capture session.
func (c *Client) PauseSession() error {
	return c.roundTrip(MsgPauseSession, MsgPauseResp, nil, nil)
}

// ResumeSession resumes a paused session.
func (c *Client) ResumeSession() error {
	return c.roundTrip(MsgResumeSession, MsgResumeResp, nil, nil)
}

// SingleShot requests one immediate capture.
func (c *Client) SingleShot() (capture.Record, error) {
	var resp SingleShotResponse
	err := c.roundTrip(MsgSingleShot, MsgSingleShotResp, nil, &resp)
	return resp.Record, err
}

// ListCaptures fetches up to limit recent captures.
func (c *Client) ListCaptures(limit int) ([]capture.Record, error) {
	var resp ListCapturesResponse
	err := c.roundTrip(MsgListCaptures, MsgListResp, ListCapturesRequest{Limit: limit}, &resp)
	return resp.Records, err
}

// SetPolicy installs a trigger policy.
func (c *Client) SetPolicy(req SetPolicyRequest) error {
	return c.roundTrip(MsgSetPolicy, MsgSetPolicyResp, req, nil)
}

// Settings fetches the active camera settings.
func (c *Client) Settings() (camera.Settings, error) {
	var resp SettingsResponse
	err := c.roundTrip(MsgGetSettings, MsgGetSettingsResp, nil, &resp)
	return resp.Settings, err
}

// ApplySettings replaces the camera settings.
func (c *Client) ApplySettings(s camera.Settings) error {
	return c.roundTrip(MsgApplySettings, MsgApplySettingsResp, ApplySettingsRequest{Settings: s}, nil)
}

// ResetFault clears a faulted controller.
func (c *Client) ResetFault() error {
	return c.roundTrip(MsgResetFault, MsgResetFaultResp, nil, nil)
}

// StartVideo begins an SVO recording.
func (c *Client) StartVideo(req VideoStartRequest) (video.Info, error) {
	var resp VideoResponse
	err := c.roundTrip(MsgVideoStart, MsgVideoStartResp, req, &resp)
	return resp.Info, err
}

// StopVideo finalizes the active recording.
func (c *Client) StopVideo() (video.Info, error) {
	var resp VideoResponse
	err := c.roundTrip(MsgVideoStop, MsgVideoStopResp, nil, &resp)
	return resp.Info, err
}
