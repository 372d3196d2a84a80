// Package router validates inbound events, applies them to room state and
// replicates the derived outbound events to the right members. All state for
// one room is mutated under that room's lock, fanout included, so every
// recipient observes events in apply order.
package router

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"inkroom/internal/protocol"
	"inkroom/internal/room"
)

// Room id used when a join carries none.
const DefaultRoomID = "default"

type handlerFunc func(cs *connState, data []byte)

type Router struct {
	registry *room.Registry

	mu       sync.RWMutex
	sessions map[string]*connState

	handlers map[string]handlerFunc
	now      func() time.Time
}

func New(registry *room.Registry) *Router {
	rt := &Router{
		registry: registry,
		sessions: make(map[string]*connState),
		now:      time.Now,
	}
	rt.handlers = map[string]handlerFunc{
		protocol.EventJoinRoom:       rt.handleJoin,
		protocol.EventDrawStart:      rt.handleDrawStart,
		protocol.EventDrawPoint:      rt.handleDrawPoint,
		protocol.EventDrawEnd:        rt.handleDrawEnd,
		protocol.EventClearDrawing:   rt.handleClearDrawing,
		protocol.EventChatSend:       rt.handleChatSend,
		protocol.EventChatTyping:     rt.handleChatTyping,
		protocol.EventChatStopTyping: rt.handleChatStopTyping,
		protocol.EventCursorMove:     rt.handleCursorMove,
		protocol.EventCursorLeave:    rt.handleCursorLeave,
	}
	return rt
}

// Register adds a freshly opened connection. The session carries no room
// binding until its join event arrives.
func (rt *Router) Register(sess Session) {
	rt.mu.Lock()
	rt.sessions[sess.ID()] = &connState{sess: sess}
	rt.mu.Unlock()

	slog.Debug("connection registered", "clientId", sess.ID())
}

// HandleEvent dispatches one inbound frame from the given connection.
// Malformed frames, unknown event types and events arriving before a join
// are dropped with a local diagnostic; none of them reach other members.
func (rt *Router) HandleEvent(sess Session, raw []byte) {
	env, err := protocol.ParseEnvelope(raw)
	if err != nil {
		slog.Warn("dropping invalid frame", "clientId", sess.ID(), "error", err)
		return
	}

	rt.mu.RLock()
	cs := rt.sessions[sess.ID()]
	rt.mu.RUnlock()
	if cs == nil {
		slog.Warn("event from unregistered connection", "clientId", sess.ID(), "event", env.Type)
		return
	}

	handler, ok := rt.handlers[env.Type]
	if !ok {
		slog.Warn("dropping unknown event", "clientId", sess.ID(), "event", env.Type)
		return
	}

	// Events racing ahead of the join are expected during the brief
	// pre-join window, not an error.
	if env.Type != protocol.EventJoinRoom && cs.roomID == "" {
		slog.Debug("dropping pre-join event", "clientId", sess.ID(), "event", env.Type)
		return
	}

	handler(cs, env.Data)
}

// HandleDisconnect removes the connection from its room, notifies the
// remaining members and tears the room down if it is now empty. The
// transport calls this exactly once per connection.
func (rt *Router) HandleDisconnect(sess Session) {
	rt.mu.Lock()
	cs := rt.sessions[sess.ID()]
	delete(rt.sessions, sess.ID())
	rt.mu.Unlock()

	if cs == nil {
		return
	}
	rt.leaveRoom(cs)

	slog.Debug("connection closed", "clientId", sess.ID())
}

func (rt *Router) handleJoin(cs *connState, data []byte) {
	p, err := protocol.ParseJoin(data)
	if err != nil {
		slog.Warn("dropping invalid join", "clientId", cs.sess.ID(), "error", err)
		return
	}

	roomID := p.RoomID
	if roomID == "" {
		roomID = DefaultRoomID
	}
	username := p.Username
	if username == "" {
		username = "User_" + shortID(cs.sess.ID())
	}

	// Re-joining replaces the session's binding; depart the old room with
	// full leave semantics first.
	if cs.roomID != "" {
		rt.leaveRoom(cs)
	}

	connID := cs.sess.ID()
	for {
		rm := rt.registry.GetOrCreate(roomID)
		joined := false
		rm.Do(func() {
			if rm.Defunct() {
				return
			}
			rm.AddPresence(connID, username)
			count := rm.PresenceCount()

			rt.sendTo(cs.sess, protocol.EventLoadDrawing, rm.Strokes())
			rt.sendTo(cs.sess, protocol.EventLoadChatHistory, rm.ChatHistory())
			rt.sendTo(cs.sess, protocol.EventUserCountUpdated, protocol.UserCountPayload{UserCount: count})
			rt.fanout(rm, connID, protocol.EventUserJoined, protocol.UserJoinedPayload{
				UserID:    connID,
				Username:  username,
				UserCount: count,
			})
			joined = true
		})
		if joined {
			break
		}
		// Lost the race against teardown of a stale instance; the retry
		// gets a fresh room.
	}

	cs.roomID = roomID
	cs.username = username

	slog.Info("user joined room", "room", roomID, "clientId", connID, "username", username)
}

func (rt *Router) handleDrawStart(cs *connState, data []byte) {
	stroke, err := protocol.ParseStroke(data)
	if err != nil {
		slog.Warn("dropping invalid stroke", "clientId", cs.sess.ID(), "error", err)
		return
	}

	rm, ok := rt.registry.Get(cs.roomID)
	if !ok {
		return
	}
	rm.Do(func() {
		rm.AppendStroke(stroke)
		rt.fanout(rm, cs.sess.ID(), protocol.EventDrawingStart, stroke)
	})
}

func (rt *Router) handleDrawPoint(cs *connState, data []byte) {
	p, err := protocol.ParsePoint(data)
	if err != nil {
		slog.Warn("dropping invalid point", "clientId", cs.sess.ID(), "error", err)
		return
	}

	rm, ok := rt.registry.Get(cs.roomID)
	if !ok {
		return
	}
	rm.Do(func() {
		// An empty log leaves state untouched but the point is still
		// relayed; late points after a clear are accepted behavior.
		rm.AppendPointToLastStroke(p)
		rt.fanout(rm, cs.sess.ID(), protocol.EventDrawingPoint, p)
	})
}

func (rt *Router) handleDrawEnd(cs *connState, data []byte) {
	rm, ok := rt.registry.Get(cs.roomID)
	if !ok {
		return
	}
	rm.Do(func() {
		rt.fanout(rm, cs.sess.ID(), protocol.EventDrawingEnd, nil)
	})
}

func (rt *Router) handleClearDrawing(cs *connState, data []byte) {
	rm, ok := rt.registry.Get(cs.roomID)
	if !ok {
		return
	}
	rm.Do(func() {
		rm.ClearStrokes()
		rt.fanoutAll(rm, protocol.EventDrawingCleared, nil)
	})
}

func (rt *Router) handleChatSend(cs *connState, data []byte) {
	text, err := protocol.ParseChatText(data)
	if err != nil {
		slog.Warn("dropping invalid chat message", "clientId", cs.sess.ID(), "error", err)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		slog.Debug("dropping empty chat message", "clientId", cs.sess.ID())
		return
	}

	rm, ok := rt.registry.Get(cs.roomID)
	if !ok {
		return
	}

	now := rt.now().UnixMilli()
	msg := room.ChatMessage{
		ID:        fmt.Sprintf("%s-%d", cs.sess.ID(), now),
		UserID:    cs.sess.ID(),
		Username:  cs.username,
		Message:   text,
		Timestamp: now,
	}

	rm.Do(func() {
		rm.AppendChatMessage(msg)
		rt.fanoutAll(rm, protocol.EventChatNewMessage, msg)
	})
}

func (rt *Router) handleChatTyping(cs *connState, data []byte) {
	rm, ok := rt.registry.Get(cs.roomID)
	if !ok {
		return
	}
	rm.Do(func() {
		rt.fanout(rm, cs.sess.ID(), protocol.EventChatUserTyping, protocol.TypingPayload{
			UserID:   cs.sess.ID(),
			Username: cs.username,
		})
	})
}

func (rt *Router) handleChatStopTyping(cs *connState, data []byte) {
	rm, ok := rt.registry.Get(cs.roomID)
	if !ok {
		return
	}
	rm.Do(func() {
		rt.fanout(rm, cs.sess.ID(), protocol.EventChatUserStoppedTyping, protocol.TypingPayload{
			UserID: cs.sess.ID(),
		})
	})
}

func (rt *Router) handleCursorMove(cs *connState, data []byte) {
	p, err := protocol.ParseCursorMove(data)
	if err != nil {
		slog.Warn("dropping invalid cursor event", "clientId", cs.sess.ID(), "error", err)
		return
	}

	cursorID := p.ID
	if cursorID == "" {
		cursorID = cs.sess.ID()
	}
	username := cs.username
	if username == "" {
		username = p.Username
	}

	rm, ok := rt.registry.Get(cs.roomID)
	if !ok {
		return
	}
	rm.Do(func() {
		rt.fanout(rm, cs.sess.ID(), protocol.EventCursorUpdate, protocol.CursorUpdatePayload{
			ID:       cursorID,
			Username: username,
			X:        p.X,
			Y:        p.Y,
		})
	})
}

func (rt *Router) handleCursorLeave(cs *connState, data []byte) {
	rm, ok := rt.registry.Get(cs.roomID)
	if !ok {
		return
	}
	rm.Do(func() {
		rt.fanout(rm, cs.sess.ID(), protocol.EventCursorRemoved, cs.sess.ID())
	})
}

// leaveRoom removes the session from its current room, notifies the rest of
// the room and removes the room if the departure emptied it. Safe to call
// with no binding.
func (rt *Router) leaveRoom(cs *connState) {
	roomID := cs.roomID
	if roomID == "" {
		return
	}

	connID := cs.sess.ID()
	if rm, ok := rt.registry.Get(roomID); ok {
		remaining := -1
		rm.Do(func() {
			username, rem := rm.RemovePresence(connID)
			remaining = rem
			rt.fanout(rm, connID, protocol.EventCursorRemoved, connID)
			rt.fanout(rm, connID, protocol.EventUserLeft, protocol.UserLeftPayload{
				UserID:    connID,
				Username:  username,
				UserCount: rem,
			})
		})
		if remaining == 0 {
			rt.registry.RemoveIfEmpty(roomID)
			slog.Info("room closed", "room", roomID)
		}
		slog.Info("user left room", "room", roomID, "clientId", connID, "remaining", remaining)
	}

	cs.roomID = ""
	cs.username = ""
}

// sendTo encodes and enqueues a single outbound event for one session.
func (rt *Router) sendTo(sess Session, eventType string, payload any) {
	frame, err := protocol.Encode(eventType, payload)
	if err != nil {
		slog.Error("encoding outbound event", "event", eventType, "error", err)
		return
	}
	if err := sess.Send(frame); err != nil {
		slog.Debug("dropping delivery", "clientId", sess.ID(), "event", eventType, "error", err)
	}
}

// fanout replicates an event to every room member except excludeID. Must run
// inside the room's Do so delivery order matches apply order.
func (rt *Router) fanout(rm *room.Room, excludeID, eventType string, payload any) {
	frame, err := protocol.Encode(eventType, payload)
	if err != nil {
		slog.Error("encoding outbound event", "event", eventType, "error", err)
		return
	}
	for connID := range rm.Members() {
		if connID == excludeID {
			continue
		}
		rt.deliver(connID, eventType, frame)
	}
}

// fanoutAll replicates an event to the entire room, sender included.
func (rt *Router) fanoutAll(rm *room.Room, eventType string, payload any) {
	rt.fanout(rm, "", eventType, payload)
}

func (rt *Router) deliver(connID, eventType string, frame []byte) {
	rt.mu.RLock()
	cs := rt.sessions[connID]
	rt.mu.RUnlock()
	if cs == nil {
		return
	}
	if err := cs.sess.Send(frame); err != nil {
		slog.Debug("dropping delivery", "clientId", connID, "event", eventType, "error", err)
	}
}

func shortID(id string) string {
	if len(id) > 4 {
		return id[:4]
	}
	return id
}
