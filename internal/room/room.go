package room

import (
	"sync"
)

// A single sampled input coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// One continuous pen gesture. Points are appended in the order the client
// sampled them; color and width never change after creation.
type Stroke struct {
	Points []Point `json:"points"`
	Color  string  `json:"color"`
	Width  float64 `json:"width"`
}

// A chat entry, immutable once appended. Username is the sender's display
// name at send time and is never rewritten afterwards.
type ChatMessage struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// A collaborative session: the stroke log, the presence set and the chat
// history shared by everyone bound to the same room id.
//
// Mutation and snapshot methods do not lock on their own; all access is
// serialized through Do so that a mutation and the fanout computed from it
// form one atomic step. The registry owns every Room instance.
type Room struct {
	ID string

	mu       sync.Mutex
	strokes  []*Stroke
	presence map[string]string
	chat     []ChatMessage

	// Set by the registry during teardown. A defunct room is no longer in
	// the registry and must never accept new members.
	defunct bool
}

// Creates a new empty room with the given ID.
func NewRoom(id string) *Room {
	return &Room{
		ID:       id,
		strokes:  make([]*Stroke, 0),
		presence: make(map[string]string),
		chat:     make([]ChatMessage, 0),
	}
}

// Do runs fn while holding the room's lock. Everything the event router does
// to a room, including computing who receives the replicated event, happens
// inside a single Do call.
func (r *Room) Do(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

// Reports whether the registry has torn this room down. Stale references
// obtained before teardown must not be used once this returns true.
func (r *Room) Defunct() bool {
	return r.defunct
}

// Appends a stroke to the end of the log.
func (r *Room) AppendStroke(s *Stroke) {
	r.strokes = append(r.strokes, s)
}

// Appends a point to the most recent stroke. Returns false when the log is
// empty; the caller still relays the point in that case.
func (r *Room) AppendPointToLastStroke(p Point) bool {
	if len(r.strokes) == 0 {
		return false
	}
	last := r.strokes[len(r.strokes)-1]
	last.Points = append(last.Points, p)
	return true
}

// Resets the stroke log to empty.
func (r *Room) ClearStrokes() {
	r.strokes = make([]*Stroke, 0)
}

// Appends a message to the chat history.
func (r *Room) AppendChatMessage(msg ChatMessage) {
	r.chat = append(r.chat, msg)
}

// Binds a connection to a display name in the presence set.
func (r *Room) AddPresence(connID, username string) {
	r.presence[connID] = username
}

// Removes a connection from the presence set and returns the display name it
// was bound to along with the remaining member count.
func (r *Room) RemovePresence(connID string) (username string, remaining int) {
	username = r.presence[connID]
	delete(r.presence, connID)
	return username, len(r.presence)
}

// The authoritative user count for the room.
func (r *Room) PresenceCount() int {
	return len(r.presence)
}

// Returns a copy of the presence set (connection id -> display name).
func (r *Room) Members() map[string]string {
	members := make(map[string]string, len(r.presence))
	for id, name := range r.presence {
		members[id] = name
	}
	return members
}

// Returns a copy of the stroke log for the join snapshot. The strokes
// themselves are shared; only the router mutates them, under Do.
func (r *Room) Strokes() []*Stroke {
	strokes := make([]*Stroke, len(r.strokes))
	copy(strokes, r.strokes)
	return strokes
}

// Returns a copy of the chat history for the join snapshot.
func (r *Room) ChatHistory() []ChatMessage {
	chat := make([]ChatMessage, len(r.chat))
	copy(chat, r.chat)
	return chat
}
