package relay

import (
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// WebSocket writes frames as JSON text messages.
type WebSocket struct {
	conn *websocket.Conn
}

func NewWebSocket(conn *websocket.Conn) *WebSocket {
	return &WebSocket{conn: conn}
}

func (s *WebSocket) Open() error {
	return nil
}

func (s *WebSocket) Chunk(text string) error {
	return s.write(Frame{Chunk: text})
}

func (s *WebSocket) Done() error {
	if err := s.write(Frame{Done: true}); err != nil {
		return err
	}
	return s.close(websocket.CloseNormalClosure, "")
}

func (s *WebSocket) Fail(err error) error {
	if werr := s.write(Frame{Error: err.Error()}); werr != nil {
		return werr
	}
	return s.close(websocket.CloseInternalServerErr, "")
}

func (s *WebSocket) write(f Frame) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(f)
}

func (s *WebSocket) close(code int, text string) error {
	msg := websocket.FormatCloseMessage(code, text)
	return s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
