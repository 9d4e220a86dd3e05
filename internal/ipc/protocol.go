// Package ipc provides the control channel between the zedcapd daemon and
// its clients over a unix socket: fixed binary framing, JSON payloads,
// request/response correlation by ID.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"zedcapd/internal/camera"
	"zedcapd/internal/capture"
	"zedcapd/internal/gps"
	"zedcapd/internal/video"
)

// Protocol constants.
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x5A495043 // "ZIPC"

	// HeaderSize is the fixed frame header size in bytes.
	HeaderSize = 16

	// MaxPayload bounds a single frame.
	MaxPayload = 4 * 1024 * 1024
)

// MessageType identifies the type of IPC message.
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing  MessageType = 0x0001
	MsgPong  MessageType = 0x0002
	MsgError MessageType = 0x0003

	// Status (0x01xx)
	MsgStatus     MessageType = 0x0100
	MsgStatusResp MessageType = 0x0101

	// Session lifecycle (0x02xx)
	MsgStartSession  MessageType = 0x0200
	MsgStartResp     MessageType = 0x0201
	MsgStopSession   MessageType = 0x0202
	MsgStopResp      MessageType = 0x0203
	MsgPauseSession  MessageType = 0x0204
	MsgPauseResp     MessageType = 0x0205
	MsgResumeSession MessageType = 0x0206
	MsgResumeResp    MessageType = 0x0207

	// Capture operations (0x03xx)
	MsgSingleShot     MessageType = 0x0300
	MsgSingleShotResp MessageType = 0x0301
	MsgListCaptures   MessageType = 0x0302
	MsgListResp       MessageType = 0x0303

	// Configuration (0x04xx)
	MsgSetPolicy         MessageType = 0x0400
	MsgSetPolicyResp     MessageType = 0x0401
	MsgGetSettings       MessageType = 0x0402
	MsgGetSettingsResp   MessageType = 0x0403
	MsgApplySettings     MessageType = 0x0404
	MsgApplySettingsResp MessageType = 0x0405
	MsgResetFault        MessageType = 0x0406
	MsgResetFaultResp    MessageType = 0x0407

	// Video recording (0x05xx)
	MsgVideoStart     MessageType = 0x0500
	MsgVideoStartResp MessageType = 0x0501
	MsgVideoStop      MessageType = 0x0502
	MsgVideoStopResp  MessageType = 0x0503
)

// Header is the fixed-size frame header.
type Header struct {
	Magic     uint32
	Version   uint8
	Flags     uint8
	Type      MessageType
	RequestID uint32
	Length    uint32
}

// Message wraps a header and its JSON payload.
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage builds a frame for the given type and payload.
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to w.
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads and validates a header from r.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}
	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}
	return h, nil
}

// Write writes the full frame to w.
func (m *Message) Write(w io.Writer) error {
	if err := m.Header.Write(w); err != nil {
		return err
	}
	if len(m.Payload) > 0 {
		_, err := w.Write(m.Payload)
		return err
	}
	return nil
}

// ReadMessage reads one complete frame from r.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayload {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Marshal builds a frame carrying the JSON encoding of v.
func Marshal(msgType MessageType, requestID uint32, v any) (*Message, error) {
	var payload []byte
	if v != nil {
		var err error
		payload, err = json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
	}
	return NewMessage(msgType, requestID, payload), nil
}

// Error codes in ErrorResponse.
const (
	ErrCodeUnknown        = 1
	ErrCodeInvalidRequest = 2
	ErrCodeInvalidState   = 3
	ErrCodeCameraBusy     = 4
	ErrCodeCamera         = 5
	ErrCodeInternal       = 6
)

// ErrorResponse reports a failed operation.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// StatusResponse is the daemon status snapshot.
type StatusResponse struct {
	Version      string          `json:"version"`
	StartedAt    time.Time       `json:"started_at"`
	Uptime       time.Duration   `json:"uptime"`
	Session      string          `json:"session"`
	Controller   capture.Status  `json:"controller"`
	GPSConnected bool            `json:"gps_connected"`
	GPS          *gps.Fix        `json:"gps,omitempty"`
	NMEATail     []string        `json:"nmea_tail,omitempty"`
	Settings     camera.Settings `json:"settings"`
	Recording    *video.Info     `json:"recording,omitempty"`
}

// SetPolicyRequest installs a trigger policy.
type SetPolicyRequest struct {
	Policy          string  `json:"policy"` // "time" or "distance"
	IntervalSeconds float64 `json:"interval_seconds,omitempty"`
	Meters          float64 `json:"meters,omitempty"`
}

// CapturePolicy translates the request into controller form.
func (r SetPolicyRequest) CapturePolicy() (capture.Policy, error) {
	switch r.Policy {
	case "time":
		return capture.TimeInterval(time.Duration(r.IntervalSeconds * float64(time.Second))), nil
	case "distance":
		return capture.DistanceInterval(r.Meters), nil
	default:
		return capture.Policy{}, fmt.Errorf("unknown policy %q", r.Policy)
	}
}

// SingleShotResponse carries the capture result.
type SingleShotResponse struct {
	Record capture.Record `json:"record"`
}

// ListCapturesRequest asks for recent captures.
type ListCapturesRequest struct {
	Limit int `json:"limit"`
}

// ListCapturesResponse carries indexed captures, newest first.
type ListCapturesResponse struct {
	Records []capture.Record `json:"records"`
}

// ApplySettingsRequest replaces the camera settings.
type ApplySettingsRequest struct {
	Settings camera.Settings `json:"settings"`
}

// SettingsResponse carries the active camera settings.
type SettingsResponse struct {
	Settings camera.Settings `json:"settings"`
}

// VideoStartRequest begins an SVO recording.
type VideoStartRequest struct {
	Codec       string `json:"codec,omitempty"`
	BitrateKbps int    `json:"bitrate_kbps,omitempty"`
}

// VideoResponse carries recording info.
type VideoResponse struct {
	Info video.Info `json:"info"`
}
