package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradelog/pkg/tradelog"
)

// ChangeMessage is one frame of a change feed.
type ChangeMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SubscribeDocument streams changes of one document.
func (c *Client) SubscribeDocument(uid, date string, fn func(tradelog.DocumentChange)) (tradelog.Unsubscribe, error) {
	return c.listen(uid, date, fn)
}

// SubscribeCollection streams changes of every document of uid. The backend
// replays existing documents as added on each (re)connect.
func (c *Client) SubscribeCollection(uid string, fn func(tradelog.DocumentChange)) (tradelog.Unsubscribe, error) {
	return c.listen(uid, "", fn)
}

func (c *Client) listenURL(uid, date string) string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += c.collectionPath(uid) + ":listen"
	u.RawPath = ""
	if date != "" {
		u.RawQuery = url.Values{"doc": {date}}.Encode()
	}
	return u.String()
}

type subscription struct {
	client *Client
	target string
	date   string
	fn     func(tradelog.DocumentChange)

	stop chan struct{}
	done chan struct{}
	once sync.Once

	mu   sync.Mutex
	conn *websocket.Conn
}

// listen dials once synchronously so that setup failures are reported to the
// caller; later disconnects are retried in the background until unsubscribed.
func (c *Client) listen(uid, date string, fn func(tradelog.DocumentChange)) (tradelog.Unsubscribe, error) {
	sub := &subscription{
		client: c,
		target: c.listenURL(uid, date),
		date:   date,
		fn:     fn,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	conn, err := sub.dial()
	if err != nil {
		return nil, err
	}
	sub.conn = conn
	go sub.run(conn)
	return sub.close, nil
}

func (s *subscription) dial() (*websocket.Conn, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	conn, resp, err := s.client.dialer.DialContext(ctx, s.target, s.client.headers())
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func (s *subscription) run(conn *websocket.Conn) {
	defer close(s.done)
	for {
		s.read(conn)
		select {
		case <-s.stop:
			return
		default:
		}

		conn = s.redial()
		if conn == nil {
			return
		}
	}
}

func (s *subscription) read(conn *websocket.Conn) {
	defer conn.Close()
	for {
		var msg ChangeMessage
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.stop:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					s.client.logger.Warn("docstore feed interrupted", "target", s.target, "err", err)
				}
			}
			return
		}
		change, err := decodeChange(msg)
		if err != nil {
			s.client.logger.Warn("docstore ignoring malformed change", "id", msg.ID, "err", err)
			continue
		}
		select {
		case <-s.stop:
			return
		default:
		}
		s.fn(change)
	}
}

// redial retries until a connection is established or the subscription is
// stopped, in which case it returns nil.
func (s *subscription) redial() *websocket.Conn {
	for {
		select {
		case <-s.stop:
			return nil
		case <-time.After(s.client.reconnect):
		}
		conn, err := s.dial()
		if err == nil {
			s.mu.Lock()
			select {
			case <-s.stop:
				s.mu.Unlock()
				conn.Close()
				return nil
			default:
			}
			s.conn = conn
			s.mu.Unlock()
			s.client.logger.Info("docstore feed reconnected", "target", s.target)
			return conn
		}
		s.client.logger.Debug("docstore reconnect failed", "target", s.target, "err", err)
	}
}

// close stops the feed and waits for the reader goroutine. It must not be
// called from inside the change callback.
func (s *subscription) close() {
	s.once.Do(func() {
		s.mu.Lock()
		close(s.stop)
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		}
		<-s.done
	})
}

func decodeChange(msg ChangeMessage) (tradelog.DocumentChange, error) {
	change := tradelog.DocumentChange{Type: tradelog.ChangeType(msg.Type), Date: msg.ID}
	switch change.Type {
	case tradelog.ChangeAdded, tradelog.ChangeModified:
	case tradelog.ChangeRemoved:
		return change, nil
	default:
		return change, errors.New("unknown change type " + msg.Type)
	}
	if len(msg.Data) == 0 || string(msg.Data) == "null" {
		return change, errors.New("missing document body")
	}
	var rec tradelog.Record
	if err := json.Unmarshal(msg.Data, &rec); err != nil {
		return change, err
	}
	change.Record = &rec
	return change, nil
}
