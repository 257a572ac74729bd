// Package realtime implements the broadcast hub: topic rooms over WebSocket
// with per-farm connection accounting and slow-consumer isolation.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/terrasense/terrasense-go/internal/alerting"
	"github.com/terrasense/terrasense-go/internal/datastore/entities"
	"github.com/terrasense/terrasense-go/internal/observability"
)

// Server-pushed event kinds.
const (
	EventTelemetry    = "iot_sensor_update"
	EventAlert        = "alert"
	EventDashboard    = "dashboard_update"
	EventNotification = "notification"
	EventError        = "error"
	EventSubscribed   = "subscribed"
)

// Event is the envelope for every server-pushed message.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MembershipResolver checks farm membership for connection authorization.
type MembershipResolver interface {
	MembersOf(ctx context.Context, farmID string) ([]string, error)
}

// Hub manages live connections grouped into topic rooms and fans events out
// to them. Rooms: farm:{id}, alerts:{id}, iot:{id}, iot:{id}:{kind},
// dashboard:{id}.
type Hub struct {
	verifier Verifier
	members  MembershipResolver
	log      *zap.Logger

	mu sync.RWMutex
	// rooms maps room name → joined clients.
	rooms map[string]map[*Client]struct{}
	// farmConns counts connections per farm; entries are removed at zero so
	// the registry never grows unbounded.
	farmConns map[string]int
	clients   map[*Client]struct{}

	upgrader websocket.Upgrader
}

// NewHub creates the broadcast hub.
func NewHub(verifier Verifier, members MembershipResolver, log *zap.Logger) *Hub {
	return &Hub{
		verifier:  verifier,
		members:   members,
		log:       log,
		rooms:     make(map[string]map[*Client]struct{}),
		farmConns: make(map[string]int),
		clients:   make(map[*Client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Room name builders.
func farmRoom(farmID string) string          { return "farm:" + farmID }
func alertsRoom(farmID string) string        { return "alerts:" + farmID }
func iotRoom(farmID string) string           { return "iot:" + farmID }
func iotKindRoom(farmID, kind string) string { return "iot:" + farmID + ":" + kind }
func dashboardRoom(farmID string) string     { return "dashboard:" + farmID }

// HandleConnection authenticates and upgrades a live connection. The token
// comes from the "token" query parameter or the Authorization bearer header;
// an optional "farm" parameter scopes the connection to that farm after a
// membership check. Authentication failures reject before any room join.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		const prefix = "Bearer "
		if auth := r.Header.Get("Authorization"); len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
			token = auth[len(prefix):]
		}
	}
	identity, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	farmID := r.URL.Query().Get("farm")
	if farmID != "" {
		ok, err := h.isMember(r.Context(), farmID, identity.UserID)
		if err != nil {
			h.log.Error("membership lookup failed",
				zap.String("farm_id", farmID), zap.Error(err))
			http.Error(w, "authorization unavailable", http.StatusServiceUnavailable)
			return
		}
		if !ok {
			http.Error(w, "no membership in requested farm", http.StatusForbidden)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:       uuid.NewString(),
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		identity: identity,
		farmID:   farmID,
		rooms:    make(map[string]struct{}),
	}
	h.register(client)
	go client.writePump()
	go client.readPump()
}

func (h *Hub) isMember(ctx context.Context, farmID, userID string) (bool, error) {
	users, err := h.members.MembersOf(ctx, farmID)
	if err != nil {
		return false, err
	}
	for _, u := range users {
		if u == userID {
			return true, nil
		}
	}
	return false, nil
}

// register adds the client, joins its farm room, and bumps the registry.
func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	if client.farmID != "" {
		h.joinLocked(client, farmRoom(client.farmID))
		h.farmConns[client.farmID]++
	}
	h.mu.Unlock()

	observability.LiveConnections.Inc()
	h.log.Info("live client connected",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.identity.UserID),
		zap.String("farm_id", client.farmID))
}

// unregister removes the client from all rooms and decrements the registry,
// dropping the farm entry entirely when its count reaches zero.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	for room := range client.rooms {
		h.leaveLocked(client, room)
	}
	if client.farmID != "" {
		if h.farmConns[client.farmID] <= 1 {
			delete(h.farmConns, client.farmID)
		} else {
			h.farmConns[client.farmID]--
		}
	}
	h.mu.Unlock()

	close(client.send)
	observability.LiveConnections.Dec()
	h.log.Info("live client disconnected", zap.String("client_id", client.ID))
}

func (h *Hub) joinLocked(client *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[client] = struct{}{}
	client.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(client.rooms, room)
}

// join adds a client to additional rooms; idempotent.
func (h *Hub) join(client *Client, rooms ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range rooms {
		h.joinLocked(client, room)
	}
}

// emit sends an event to every client in a room. A client whose send buffer
// is full is disconnected rather than allowed to block the broadcast.
func (h *Hub) emit(room string, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("failed to marshal event", zap.String("room", room), zap.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*Client
	for client := range h.rooms[room] {
		select {
		case client.send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.log.Warn("disconnecting slow consumer", zap.String("client_id", client.ID))
		h.unregister(client)
		client.conn.Close()
	}
}

// BroadcastAlert delivers an alert to its farm's alert room, and a
// lower-detail notification envelope to the general farm room.
func (h *Hub) BroadcastAlert(alert *alerting.Alert) {
	now := time.Now()
	h.emit(alertsRoom(alert.FarmID), Event{Type: EventAlert, Data: alert, Timestamp: now})
	h.emit(farmRoom(alert.FarmID), Event{Type: EventNotification, Data: map[string]any{
		"title":    alert.Title,
		"severity": alert.Severity,
		"type":     alert.Type,
	}, Timestamp: now})
}

// BroadcastTelemetry delivers a reading to the farm's telemetry rooms and a
// dashboard-update envelope to dashboard subscribers.
func (h *Hub) BroadcastTelemetry(reading *entities.SensorReading, device *entities.SensorDevice) {
	now := time.Now()
	data := map[string]any{
		"device_id":    device.DeviceID,
		"sensor_type":  reading.SensorType,
		"value":        reading.Value,
		"unit":         reading.Unit,
		"reading_time": reading.ReadingTime,
	}
	h.emit(iotRoom(reading.FarmID), Event{Type: EventTelemetry, Data: data, Timestamp: now})
	h.emit(iotKindRoom(reading.FarmID, reading.SensorType), Event{Type: EventTelemetry, Data: data, Timestamp: now})
	h.emit(dashboardRoom(reading.FarmID), Event{Type: EventDashboard, Data: map[string]any{
		"kind":        "telemetry",
		"sensor_type": reading.SensorType,
		"value":       reading.Value,
	}, Timestamp: now})
}

// BroadcastDeviceEvent delivers a device lifecycle event to the farm room.
func (h *Hub) BroadcastDeviceEvent(farmID, event string, data map[string]any) {
	h.emit(farmRoom(farmID), Event{Type: event, Data: data, Timestamp: time.Now()})
}

// ConnectedFarms returns the farms with at least one live connection.
func (h *Hub) ConnectedFarms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	farms := make([]string, 0, len(h.farmConns))
	for farmID := range h.farmConns {
		farms = append(farms, farmID)
	}
	return farms
}

// ConnectionCount returns the number of live connections for a farm.
func (h *Hub) ConnectionCount(farmID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.farmConns[farmID]
}

// Shutdown closes every live connection.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()
	for _, client := range clients {
		h.unregister(client)
		client.conn.Close()
	}
}

// subscribe handles a client-initiated subscribe message. The farm defaults
// to the connection's farm scope; subscribing to another farm requires the
// connection to have been scoped to it.
func (h *Hub) subscribe(client *Client, msg *clientMessage) error {
	farmID := msg.FarmID
	if farmID == "" {
		farmID = client.farmID
	}
	if farmID == "" {
		return fmt.Errorf("farm is required")
	}
	if client.farmID != "" && farmID != client.farmID {
		return fmt.Errorf("connection is not scoped to farm %s", farmID)
	}

	switch msg.Action {
	case actionSubscribeAlerts:
		h.join(client, alertsRoom(farmID))
	case actionSubscribeTelemetry:
		if len(msg.SensorTypes) == 0 {
			h.join(client, iotRoom(farmID))
		} else {
			rooms := make([]string, 0, len(msg.SensorTypes))
			for _, kind := range msg.SensorTypes {
				rooms = append(rooms, iotKindRoom(farmID, kind))
			}
			h.join(client, rooms...)
		}
	case actionSubscribeDashboard:
		h.join(client, dashboardRoom(farmID))
	default:
		return fmt.Errorf("unknown action %q", msg.Action)
	}
	return nil
}
