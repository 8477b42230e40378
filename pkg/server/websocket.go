package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	gerrors "gradient-infill-go/pkg/errors"
	"gradient-infill-go/pkg/pool"
)

// JSON-RPC 2.0 structures

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
	ID      any           `json:"id,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSON-RPC error codes
const (
	rpcParseError     = -32700
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
)

type rpcError struct {
	code int
	err  error
}

func (e *rpcError) Error() string { return e.err.Error() }
func (e *rpcError) Unwrap() error { return e.err }

// rpcCode picks the JSON-RPC code for a dispatch error.
func rpcCode(err error) int {
	if re, ok := err.(*rpcError); ok {
		return re.code
	}
	if gerrors.Is(err, gerrors.ErrRequest) {
		return rpcInvalidParams
	}
	return rpcServerError
}

// dispatchMethod routes a method call. gradient.process blocks for the
// duration of the job.
func (s *Server) dispatchMethod(method string, params json.RawMessage) (any, error) {
	switch method {
	case "server.info":
		return s.serverInfo(), nil
	case "server.jobs.list":
		return s.methodJobsList(params)
	case "server.jobs.job":
		return s.methodJob(params)
	case "gradient.process":
		return s.methodProcess(params)
	default:
		return nil, &rpcError{code: rpcMethodNotFound, err: gerrors.RequestError("method", "method not found: "+method)}
	}
}

func (s *Server) methodJobsList(params json.RawMessage) (any, error) {
	var p struct {
		Limit int    `json:"limit"`
		Start int    `json:"start"`
		Order string `json:"order"`
	}
	p.Limit = 50
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, gerrors.Wrap(err, gerrors.ErrRequest, "invalid params")
		}
	}
	return s.jobListResult(p.Limit, p.Start, p.Order), nil
}

func (s *Server) methodJob(params json.RawMessage) (any, error) {
	var p struct {
		JobID string `json:"job_id"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, gerrors.Wrap(err, gerrors.ErrRequest, "invalid params")
		}
	}
	if p.JobID == "" {
		return nil, gerrors.RequestError("job_id", "missing job_id parameter")
	}
	job, err := s.history.Get(p.JobID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"job": job}, nil
}

func (s *Server) methodProcess(params json.RawMessage) (any, error) {
	req, err := DecodeJobRequest(bytes.NewReader(params))
	if err != nil {
		return nil, err
	}
	gcode, job, err := s.RunJob(s.baseCtx, "websocket", req)
	if err != nil {
		return nil, err
	}
	return map[string]any{"gradient_gcode": gcode, "job_id": job.JobID}, nil
}

// notifyJob sends notify_job_update to every websocket client.
func (s *Server) notifyJob(job Job) {
	s.wsClientMu.RLock()
	defer s.wsClientMu.RUnlock()
	if len(s.wsClients) == 0 {
		return
	}

	note := pool.GetFieldMap()
	defer pool.PutFieldMap(note)
	note["jsonrpc"] = "2.0"
	note["method"] = "notify_job_update"
	note["params"] = []any{job}

	buf := pool.GetByteBuffer()
	defer pool.PutByteBuffer(buf)
	if err := json.NewEncoder(buf).Encode(note); err != nil {
		s.log.WithError(err).Warn("failed to encode job notification")
		return
	}
	msg := append([]byte(nil), buf.Bytes()...)

	for _, client := range s.wsClients {
		client.Send(msg)
	}
}

// WSClient represents a WebSocket client connection.
type WSClient struct {
	id     int64
	conn   *websocket.Conn
	server *Server
	sendCh chan any
	done   chan struct{}
	mu     sync.Mutex
}

func (s *Server) newWSClient(conn *websocket.Conn) *WSClient {
	return &WSClient{
		id:     atomic.AddInt64(&s.nextWSID, 1),
		conn:   conn,
		server: s,
		sendCh: make(chan any, 64),
		done:   make(chan struct{}),
	}
}

// Send queues a message for the client. Raw []byte values are written as
// text frames, anything else is JSON encoded.
func (c *WSClient) Send(msg any) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
		c.server.log.Warn("dropping message to websocket client %d (queue full)", c.id)
	}
}

// Close closes the client connection.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}
	c.conn.Close()
}

func (c *WSClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.Close()
	}()

	maxMessage := int64(c.server.cfg.Server.MaxBodyMB) << 20
	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.log.WithError(err).Warn("websocket read error")
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		c.handleMessage(message)
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			var err error
			if raw, ok := msg.([]byte); ok {
				err = c.conn.WriteMessage(websocket.TextMessage, raw)
			} else {
				err = c.conn.WriteJSON(msg)
			}
			if err != nil {
				c.server.log.WithError(err).Warn("websocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleMessage processes an incoming request. Jobs run on their own
// goroutine so the client can keep querying while one is in progress.
func (c *WSClient) handleMessage(data []byte) {
	var req jsonRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(nil, rpcParseError, "Parse error")
		return
	}

	if req.Method == "gradient.process" {
		go c.respond(req)
		return
	}
	c.respond(req)
}

func (c *WSClient) respond(req jsonRPCRequest) {
	result, err := c.server.dispatchMethod(req.Method, req.Params)
	if err != nil {
		c.sendError(req.ID, rpcCode(err), err.Error())
		return
	}
	c.Send(jsonRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	})
}

func (c *WSClient) sendError(id any, code int, message string) {
	c.Send(jsonRPCResponse{
		JSONRPC: "2.0",
		Error:   &jsonRPCError{Code: code, Message: message},
		ID:      id,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := s.newWSClient(conn)
	s.wsClientMu.Lock()
	s.wsClients[client.id] = client
	s.wsClientMu.Unlock()
	s.log.Debug("websocket client %d connected", client.id)

	go client.writePump()
	client.readPump()
}

func (s *Server) removeClient(client *WSClient) {
	s.wsClientMu.Lock()
	delete(s.wsClients, client.id)
	s.wsClientMu.Unlock()
	s.log.Debug("websocket client %d disconnected", client.id)
}
