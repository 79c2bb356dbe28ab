package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"auction-engine/internal/metrics"
	"auction-engine/utils"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Command types a participant may send over the socket
const (
	CommandJoin  = "join"
	CommandLeave = "leave"
)

// Command is an inbound participant message
type Command struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
}

type commandError struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id,omitempty"`
	Error     string `json:"error"`
}

// Membership applies join/leave commands. Join must deliver a snapshot to
// sub before any later event of that auction.
type Membership interface {
	Join(ctx context.Context, auctionID string, sub *Subscriber) error
	Leave(ctx context.Context, auctionID string, sub *Subscriber) error
	Disconnect(sub *Subscriber)
}

// Client bridges one websocket connection to a Subscriber
type Client struct {
	conn       *websocket.Conn
	sub        *Subscriber
	membership Membership
}

// NewClient wraps an upgraded connection
func NewClient(conn *websocket.Conn, sub *Subscriber, membership Membership) *Client {
	return &Client{conn: conn, sub: sub, membership: membership}
}

// Run pumps messages until the connection closes or ctx ends.
// Disconnecting never touches auction state; it only drops the subscription.
func (c *Client) Run(ctx context.Context) {
	metrics.WebsocketConnections.Inc()
	defer metrics.WebsocketConnections.Dec()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(ctx)
	}()

	c.readPump(ctx)

	c.sub.Close()
	c.membership.Disconnect(c.sub)
	<-writerDone
	c.conn.Close()

	utils.Info("broadcast: participant disconnected", map[string]any{
		"subscriber_id": c.sub.ID(),
		"user_id":       c.sub.UserID(),
	})
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.Warn("broadcast: read error", map[string]any{"subscriber_id": c.sub.ID(), "error": err.Error()})
			}
			return
		}
		if c.sub.Closed() {
			return
		}
		c.handle(ctx, cmd)
	}
}

func (c *Client) handle(ctx context.Context, cmd Command) {
	var err error
	switch cmd.Type {
	case CommandJoin:
		err = c.membership.Join(ctx, cmd.AuctionID, c.sub)
	case CommandLeave:
		err = c.membership.Leave(ctx, cmd.AuctionID, c.sub)
	default:
		c.reply(commandError{Type: "error", AuctionID: cmd.AuctionID, Error: "unknown command " + cmd.Type})
		return
	}
	if err != nil {
		c.reply(commandError{Type: "error", AuctionID: cmd.AuctionID, Error: err.Error()})
	}
}

func (c *Client) reply(msg commandError) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.sub.deliver(data)
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.sub.Messages():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.sub.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.sub.Close()
				return
			}
		case <-c.sub.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			// unblock the reader
			_ = c.conn.SetReadDeadline(time.Now())
			return
		case <-ctx.Done():
			c.sub.Close()
		}
	}
}
