package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

type WebSocketConnection struct {
	conn      *websocket.Conn
	clientID  string
	auctionID string
	writeMu   sync.Mutex
}

func NewWebSocketConnection(conn *websocket.Conn, clientID, auctionID string) *WebSocketConnection {
	return &WebSocketConnection{
		conn:      conn,
		clientID:  clientID,
		auctionID: auctionID,
	}
}

// Send writes message as JSON. gorilla connections allow one writer at a time.
func (wsc *WebSocketConnection) Send(message interface{}) error {
	wsc.writeMu.Lock()
	defer wsc.writeMu.Unlock()

	wsc.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return wsc.conn.WriteJSON(message)
}

func (wsc *WebSocketConnection) Close() error {
	wsc.writeMu.Lock()
	defer wsc.writeMu.Unlock()

	wsc.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return wsc.conn.Close()
}

// ReadLoop drains client frames until the peer goes away.
func (wsc *WebSocketConnection) ReadLoop() error {
	for {
		if _, _, err := wsc.conn.ReadMessage(); err != nil {
			return err
		}
	}
}

func (wsc *WebSocketConnection) ClientID() string {
	return wsc.clientID
}

func (wsc *WebSocketConnection) AuctionID() string {
	return wsc.auctionID
}
