package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/LJMStark/outku3-sub001/internal/syncer"
)

// Handler bridges sync coordinator events to dashboard broadcasts. Install
// it with Coordinator.SetNotify.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates an event handler connected to a dashboard server.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{server: server, logger: logger}
}

// OnSyncEvent translates a coordinator event into a broadcast message.
func (h *Handler) OnSyncEvent(ev syncer.Event) {
	var msgType MessageType
	switch ev.Kind {
	case syncer.EventSyncStarted:
		msgType = MessageTypeSyncStarted
	case syncer.EventSyncFinished:
		msgType = MessageTypeSyncFinished
	case syncer.EventSaveQueued:
		msgType = MessageTypeSaveQueued
	default:
		h.logger.Printf("Unknown sync event kind: %s", ev.Kind)
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Printf("Failed to marshal sync event: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	})
}
