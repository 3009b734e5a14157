package server

import (
	"encoding/json"

	"volley/internal/runner"
	"volley/internal/stats"
)

// Message types accepted from websocket clients.
const (
	MessageStartTest = "start-test"
	MessageStopTest  = "stop-test"
)

// FrameError reports a rejected client message.
const FrameError = "test-error"

// ClientMessage is one frame sent by a websocket client.
type ClientMessage struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
	TestID string          `json:"testId,omitempty"`
}

// Frame is one frame pushed to a websocket client.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type runData struct {
	TestID string `json:"testId"`
}

type completedData struct {
	TestID string          `json:"testId"`
	Stats  *stats.Snapshot `json:"stats"`
}

type errorData struct {
	TestID  string `json:"testId,omitempty"`
	Message string `json:"message"`
}

// updateData mirrors one worker action. Response fields are pointers so a
// request-sent update leaves them out and a transport failure reports null.
type updateData struct {
	TestID          string            `json:"testId"`
	Stats           stats.Snapshot    `json:"stats"`
	UserID          int               `json:"userId"`
	Event           runner.Action     `json:"event"`
	ResponseTime    *int64            `json:"responseTime,omitempty"`
	Status          *int              `json:"status,omitempty"`
	StatusCode      *int              `json:"statusCode,omitempty"`
	ResponseData    *string           `json:"responseData,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	Error           string            `json:"error,omitempty"`
}

func errorFrame(testID, msg string) Frame {
	return Frame{Type: FrameError, Data: errorData{TestID: testID, Message: msg}}
}

// NewFrame encodes a run event for the wire.
func NewFrame(ev runner.Event) Frame {
	switch ev.Type {
	case runner.EventUpdate:
		return Frame{Type: string(ev.Type), Data: newUpdateData(ev)}
	case runner.EventCompleted:
		return Frame{Type: string(ev.Type), Data: completedData{TestID: ev.RunID, Stats: ev.Final}}
	default:
		return Frame{Type: string(ev.Type), Data: runData{TestID: ev.RunID}}
	}
}

func newUpdateData(ev runner.Event) updateData {
	d := updateData{TestID: ev.RunID}
	u := ev.Update
	if u == nil {
		return d
	}

	d.Stats = u.Stats
	d.UserID = u.WorkerID
	d.Event = u.Action
	if u.Action != runner.ActionResponseReceived {
		return d
	}

	rt := u.ResponseTimeMs
	d.ResponseTime = &rt
	d.Error = u.Error
	if u.StatusCode != 0 {
		code := u.StatusCode
		d.StatusCode = &code
		preview := u.ResponsePreview
		d.ResponseData = &preview
		d.ResponseHeaders = u.ResponseHeaders
		if u.Error == "" {
			d.Status = &code
		}
	}
	return d
}
