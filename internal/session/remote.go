package session

import (
	"encoding/json"

	"github.com/corkboardhq/corkboard/backend/internal/board"
	"go.uber.org/zap"
)

// handleFrame applies one broadcast event from a peer. Every application is
// idempotent: duplicate frames and frames referencing ids this replica no
// longer holds are silent no-ops.
func (s *Session) handleFrame(frame []byte) {
	envelope, err := board.DecodeEvent(frame)
	if err != nil {
		s.logger.Warn("remote frame dropped",
			zap.String("operation", opRemoteApply), zap.Error(err))
		return
	}
	switch envelope.Type {
	case board.EventCreated:
		var event board.CreatedEvent
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			s.logRemoteDecode(envelope.Type, err)
			return
		}
		s.applyRemoteCreated(event)
	case board.EventUpdated:
		var event board.UpdatedEvent
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			s.logRemoteDecode(envelope.Type, err)
			return
		}
		s.applyRemoteUpdated(event)
	case board.EventDeleted:
		var event board.DeletedEvent
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			s.logRemoteDecode(envelope.Type, err)
			return
		}
		s.applyRemoteDeleted(event)
	case board.EventIDReplaced:
		var event board.IDReplacedEvent
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			s.logRemoteDecode(envelope.Type, err)
			return
		}
		s.applyRemoteIDReplaced(event)
	default:
		// Cursor and presence events never arrive on the object channel.
		s.logger.Debug("unexpected event on object channel",
			zap.String("event", string(envelope.Type)))
	}
}

func (s *Session) applyRemoteCreated(event board.CreatedEvent) {
	object, err := board.DecodeObject(event.Object)
	if err != nil {
		s.logRemoteDecode(board.EventCreated, err)
		return
	}
	s.mu.Lock()
	inserted := s.cache.insert(object)
	s.mu.Unlock()
	if inserted {
		s.notifyChange()
	}
}

// applyRemoteUpdated merges the changed fields in arrival order; whichever
// update a replica receives last wins. Updates to ids this replica deleted
// are dropped.
func (s *Session) applyRemoteUpdated(event board.UpdatedEvent) {
	id, err := board.NewObjectID(event.ID)
	if err != nil {
		s.logRemoteDecode(board.EventUpdated, err)
		return
	}
	s.mu.Lock()
	existing, ok := s.cache.get(id)
	if !ok {
		s.mu.Unlock()
		return
	}
	s.cache.set(id, event.Fields.Apply(existing))
	s.mu.Unlock()
	s.notifyChange()
}

func (s *Session) applyRemoteDeleted(event board.DeletedEvent) {
	id, err := board.NewObjectID(event.ID)
	if err != nil {
		s.logRemoteDecode(board.EventDeleted, err)
		return
	}
	s.mu.Lock()
	removed := s.cache.remove(id)
	if s.pendingCreates[id] {
		// A peer deleted our optimistic object before its insert resolved;
		// the insert's completion will clean up the durable row.
		s.canceledCreates[id] = true
	}
	s.mu.Unlock()
	if removed {
		s.notifyChange()
	}
}

// applyRemoteIDReplaced swaps a temporary id for its durable counterpart,
// keeping the object's position in iteration order. If the temp id is gone
// the event is discarded: deletion wins over reconciliation.
func (s *Session) applyRemoteIDReplaced(event board.IDReplacedEvent) {
	tempID, err := board.NewObjectID(event.TempID)
	if err != nil {
		s.logRemoteDecode(board.EventIDReplaced, err)
		return
	}
	object, err := board.DecodeObject(event.RealObject)
	if err != nil {
		s.logRemoteDecode(board.EventIDReplaced, err)
		return
	}
	s.mu.Lock()
	replaced := s.cache.replace(tempID, object)
	s.mu.Unlock()
	if replaced {
		s.notifyChange()
	}
}

func (s *Session) logRemoteDecode(eventType board.EventType, err error) {
	s.logger.Warn("remote event decode failed",
		zap.String("operation", opRemoteApply),
		zap.String("event", string(eventType)),
		zap.Error(err))
}
