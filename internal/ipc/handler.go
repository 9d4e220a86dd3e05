package ipc

import (
	"context"
	"encoding/json"
	"errors"

	"zedcapd/internal/camera"
	"zedcapd/internal/capture"
	"zedcapd/internal/session"
	"zedcapd/internal/video"
)

// Daemon is the control surface the handler exposes over the socket. The
// daemon main wires its supervisor, controller, and video manager into one
// implementation.
type Daemon interface {
	Status() StatusResponse
	StartSession() error
	StopSession() error
	PauseSession() error
	ResumeSession() error
	SingleShot() (capture.Record, error)
	ListCaptures(limit int) ([]capture.Record, error)
	SetPolicy(capture.Policy) error
	Settings() camera.Settings
	ApplySettings(camera.Settings) error
	ResetFault() error
	StartVideo(camera.RecordingOptions) (video.Info, error)
	StopVideo() (video.Info, error)
}

// DaemonHandler routes messages to a Daemon.
type DaemonHandler struct {
	daemon Daemon
}

// NewDaemonHandler builds the message router.
func NewDaemonHandler(d Daemon) *DaemonHandler {
	return &DaemonHandler{daemon: d}
}

// HandleMessage processes one request frame and returns the response frame.
func (h *DaemonHandler) HandleMessage(ctx context.Context, msg *Message) (*Message, error) {
	id := msg.Header.RequestID

	switch msg.Header.Type {
	case MsgPing:
		return NewMessage(MsgPong, id, nil), nil

	case MsgStatus:
		return Marshal(MsgStatusResp, id, h.daemon.Status())

	case MsgStartSession:
		return h.ack(MsgStartResp, id, h.daemon.StartSession()), nil

	case MsgStopSession:
		return h.ack(MsgStopResp, id, h.daemon.StopSession()), nil

	case MsgPauseSession:
		return h.ack(MsgPauseResp, id, h.daemon.PauseSession()), nil

	case MsgResumeSession:
		return h.ack(MsgResumeResp, id, h.daemon.ResumeSession()), nil

	case MsgSingleShot:
		rec, err := h.daemon.SingleShot()
		if err != nil {
			return h.errorResp(id, err), nil
		}
		return Marshal(MsgSingleShotResp, id, SingleShotResponse{Record: rec})

	case MsgListCaptures:
		var req ListCapturesRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return h.badRequest(id, err), nil
		}
		if req.Limit <= 0 {
			req.Limit = 20
		}
		recs, err := h.daemon.ListCaptures(req.Limit)
		if err != nil {
			return h.errorResp(id, err), nil
		}
		return Marshal(MsgListResp, id, ListCapturesResponse{Records: recs})

	case MsgSetPolicy:
		var req SetPolicyRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return h.badRequest(id, err), nil
		}
		policy, err := req.CapturePolicy()
		if err != nil {
			return h.badRequest(id, err), nil
		}
		return h.ack(MsgSetPolicyResp, id, h.daemon.SetPolicy(policy)), nil

	case MsgGetSettings:
		return Marshal(MsgGetSettingsResp, id, SettingsResponse{Settings: h.daemon.Settings()})

	case MsgApplySettings:
		var req ApplySettingsRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return h.badRequest(id, err), nil
		}
		return h.ack(MsgApplySettingsResp, id, h.daemon.ApplySettings(req.Settings)), nil

	case MsgResetFault:
		return h.ack(MsgResetFaultResp, id, h.daemon.ResetFault()), nil

	case MsgVideoStart:
		var req VideoStartRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return h.badRequest(id, err), nil
		}
		info, err := h.daemon.StartVideo(camera.RecordingOptions{
			Codec:       req.Codec,
			BitrateKbps: req.BitrateKbps,
		})
		if err != nil {
			return h.errorResp(id, err), nil
		}
		return Marshal(MsgVideoStartResp, id, VideoResponse{Info: info})

	case MsgVideoStop:
		info, err := h.daemon.StopVideo()
		if err != nil {
			return h.errorResp(id, err), nil
		}
		return Marshal(MsgVideoStopResp, id, VideoResponse{Info: info})

	default:
		resp, _ := Marshal(MsgError, id, ErrorResponse{
			Code:    ErrCodeInvalidRequest,
			Message: "unknown message type",
		})
		return resp, nil
	}
}

func (h *DaemonHandler) ack(respType MessageType, id uint32, err error) *Message {
	if err != nil {
		return h.errorResp(id, err)
	}
	return NewMessage(respType, id, nil)
}

func (h *DaemonHandler) badRequest(id uint32, err error) *Message {
	resp, _ := Marshal(MsgError, id, ErrorResponse{
		Code:    ErrCodeInvalidRequest,
		Message: err.Error(),
	})
	return resp
}

func (h *DaemonHandler) errorResp(id uint32, err error) *Message {
	code := ErrCodeInternal
	switch {
	case errors.Is(err, camera.ErrCameraBusy):
		code = ErrCodeCameraBusy
	case errors.Is(err, camera.ErrCameraUnavailable):
		code = ErrCodeCamera
	case errors.Is(err, camera.ErrUnsupportedSetting):
		code = ErrCodeInvalidRequest
	case errors.Is(err, capture.ErrInvalidTransition),
		errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, capture.ErrPolicyNotSet),
		errors.Is(err, video.ErrAlreadyRecording),
		errors.Is(err, video.ErrNotRecording):
		code = ErrCodeInvalidState
	}

	resp, _ := Marshal(MsgError, id, ErrorResponse{Code: code, Message: err.Error()})
	return resp
}
