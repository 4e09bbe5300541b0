// Package realtime pushes call transactions to connected websocket clients.
//
// Every connection owns a Session with its own seen-set, so the same transaction
// arriving over pub/sub and through a sync replay produces one set of frames.
package realtime

import (
	"coincall-platform/internal/callevent"
	"coincall-platform/internal/calls"
)

// FrameType names the UI surface a frame updates.
type FrameType string

const (
	FrameChatCallEvent FrameType = "chat:call_event"
	FrameCallsUpdate   FrameType = "calls:update"
	FrameWalletUpdate  FrameType = "wallet:update"
	FrameSyncDone      FrameType = "sync:done"
	FrameError         FrameType = "error"
)

// Frame is one server-to-client websocket message.
type Frame struct {
	Type FrameType `json:"type"`

	Transaction *calls.Transaction `json:"transaction,omitempty"`
	Display     *callevent.Display `json:"display,omitempty"`

	// PeerID is the other participant, used by the client to pick the chat thread.
	PeerID string `json:"peerId,omitempty"`

	// Replayed counts transactions sent for a sync request.
	Replayed *int   `json:"replayed,omitempty"`
	Error    string `json:"error,omitempty"`
}

// clientMessage is the client-to-server envelope.
type clientMessage struct {
	Type  string `json:"type"`
	Limit int    `json:"limit,omitempty"`
}

const clientMessageSync = "sync"
