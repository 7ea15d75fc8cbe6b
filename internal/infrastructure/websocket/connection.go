package websocket

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Connection wraps a gorilla websocket connection for one user watching one
// auction. Writes are serialized; gorilla allows only one concurrent writer.
type Connection struct {
	conn      *websocket.Conn
	userID    string
	auctionID string
	writeMu   sync.Mutex
}

func NewConnection(conn *websocket.Conn, userID, auctionID string) *Connection {
	return &Connection{
		conn:      conn,
		userID:    userID,
		auctionID: auctionID,
	}
}

func (c *Connection) Send(message interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if data, ok := message.([]byte); ok {
		return c.conn.WriteMessage(websocket.TextMessage, data)
	}
	return c.conn.WriteJSON(message)
}

func (c *Connection) Close() error {
	return c.conn.Close()
}

func (c *Connection) UserID() string {
	return c.userID
}

func (c *Connection) AuctionID() string {
	return c.auctionID
}
