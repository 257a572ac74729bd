package realtime

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second
	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize bounds inbound client messages.
	maxMessageSize = 1024
	// sendBufferSize is the outbound buffer per client; a full buffer marks
	// the client as a slow consumer.
	sendBufferSize = 64
)

// Client subscribe actions.
const (
	actionSubscribeAlerts    = "subscribe_alerts"
	actionSubscribeTelemetry = "subscribe_telemetry"
	actionSubscribeDashboard = "subscribe_dashboard"
)

// clientMessage is a client-initiated control message.
type clientMessage struct {
	Action      string   `json:"action"`
	FarmID      string   `json:"farm_id,omitempty"`
	SensorTypes []string `json:"sensor_types,omitempty"`
}

// Client is one live connection joined to a set of rooms.
type Client struct {
	ID       string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity *Identity
	farmID   string
	// rooms is the set of joined room names, guarded by the hub mutex.
	rooms map[string]struct{}
}

// readPump reads client control messages until the connection drops. A
// malformed or rejected message produces an error event on the socket; the
// connection stays open.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("live connection read error",
					zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("malformed message")
			continue
		}
		if err := c.hub.subscribe(c, &msg); err != nil {
			c.sendError(err.Error())
			continue
		}
		c.sendEvent(Event{Type: EventSubscribed, Data: map[string]any{"action": msg.Action}, Timestamp: time.Now()})
	}
}

// writePump pushes hub events and keepalive pings to the peer.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendEvent(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
		// Slow consumer; the next hub broadcast will disconnect it.
	}
}

func (c *Client) sendError(message string) {
	c.sendEvent(Event{Type: EventError, Data: map[string]any{"message": message}, Timestamp: time.Now()})
}
