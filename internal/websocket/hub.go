package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/stobylabs/stoby/domain/repositories"
	"github.com/stobylabs/stoby/internal/config"
	"github.com/stobylabs/stoby/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active clients and holds the shared services
// each connection needs.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	mu sync.RWMutex

	sttRepo    repositories.SpeechToText
	classifier repositories.IntentClassifier
	executor   usecase.CommandExecutor
	cfg        config.Config

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(
	sttRepo repositories.SpeechToText,
	classifier repositories.IntentClassifier,
	executor usecase.CommandExecutor,
	cfg config.Config,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		sttRepo:    sttRepo,
		classifier: classifier,
		executor:   executor,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.deviceID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("deviceID", client.deviceID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.deviceID]; ok {
				delete(h.clients, client.deviceID)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("deviceID", client.deviceID))
		}
	}
}

type WriteData struct {
	// Type is websocket.TextMessage or websocket.BinaryMessage.
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the control
// loop. Incoming audio goes to the transcription stream; the controller's
// results come back out through the ResultSink methods.
type Client struct {
	hub *Hub

	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	deviceID string

	logger *zap.Logger

	controller *usecase.SessionController
	listener   *usecase.UtteranceListener

	mutex      sync.Mutex
	sttStream  repositories.TranscriptStream
	streamCtx  context.Context
	streamStop context.CancelFunc
}

// HandleWebSocket upgrades the connection for a pre-authenticated device
// and starts its pumps.
func HandleWebSocket(hub *Hub, c echo.Context, deviceID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan WriteData, 256),
		deviceID: deviceID,
		logger:   logger,
	}

	client.controller = usecase.NewSessionController(deviceID, hub.classifier, hub.executor, client, logger)
	client.listener = usecase.NewUtteranceListener(usecase.ListenerConfig{
		SilenceTimeout:    hub.cfg.Listening.SilenceTimeout,
		MinUtteranceRunes: hub.cfg.Listening.MinUtteranceRunes,
		MaxUtteranceAge:   hub.cfg.Listening.MaxUtteranceAge,
	}, client.onUtterance, logger)

	client.hub.register <- client

	go client.writePump()
	go client.readPump()

	return nil
}

// onUtterance hands a completed utterance to the state machine.
func (c *Client) onUtterance(utterance string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	c.controller.HandleUtterance(ctx, utterance)
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.stopListening()
		c.controller.Shutdown()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processControlMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processControlMessage processes incoming JSON messages from the device
func (c *Client) processControlMessage(message []byte) {
	msgType, start, err := ParseControlMessage(message)
	if err != nil {
		c.logger.Error("Failed to parse message", zap.Error(err))
		c.sendJSON(CreateErrorMessage("bad_message", err.Error()))
		return
	}

	switch msgType {
	case MessageTypeListeningStart:
		c.handleListeningStart(start)
	case MessageTypeListeningEnd:
		c.handleListeningEnd()
	case MessageTypePing:
		c.sendJSON(&BaseMessage{Type: MessageTypePong, Timestamp: time.Now().Format(time.RFC3339)})
	}
}

// processBinaryAudioChunk forwards raw audio to the transcription stream
func (c *Client) processBinaryAudioChunk(data []byte) {
	c.mutex.Lock()
	stream := c.sttStream
	c.mutex.Unlock()

	if stream == nil {
		c.logger.Warn("Received audio chunk with no open listening stream",
			zap.String("deviceID", c.deviceID))
		return
	}

	if err := stream.Send(data); err != nil {
		c.logger.Error("Failed to stream audio data",
			zap.String("deviceID", c.deviceID),
			zap.Error(err))
	}
}

// handleListeningStart opens the transcription stream and starts consuming
// its fragments.
func (c *Client) handleListeningStart(msg *ListeningStartMessage) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.sttStream != nil {
		c.logger.Warn("listening_start while already listening",
			zap.String("deviceID", c.deviceID))
		return
	}

	audioConfig := repositories.AudioConfig{
		SampleRate: c.hub.cfg.STT.SampleRate,
		Encoding:   c.hub.cfg.STT.Encoding,
		Language:   c.hub.cfg.STT.Language,
	}
	if msg != nil {
		if msg.SampleRate > 0 {
			audioConfig.SampleRate = msg.SampleRate
		}
		if msg.Encoding != "" {
			audioConfig.Encoding = msg.Encoding
		}
		if msg.Language != "" {
			audioConfig.Language = msg.Language
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := c.hub.sttRepo.StartStream(ctx, audioConfig)
	if err != nil {
		cancel()
		c.logger.Error("Failed to start transcription stream",
			zap.String("deviceID", c.deviceID),
			zap.Error(err))
		c.sendJSON(CreateErrorMessage("stt_unavailable", "failed to start transcription"))
		return
	}

	c.sttStream = stream
	c.streamCtx = ctx
	c.streamStop = cancel

	go c.consumeFragments(ctx, stream, audioConfig)

	c.logger.Info("Listening started",
		zap.String("deviceID", c.deviceID),
		zap.String("language", audioConfig.Language))

	c.sendJSON(&BaseMessage{Type: MessageTypeListeningStart, Timestamp: time.Now().Format(time.RFC3339)})
}

// handleListeningEnd closes the audio side of the transcription stream.
func (c *Client) handleListeningEnd() {
	c.stopListening()
	c.sendJSON(&BaseMessage{Type: MessageTypeListeningEnd, Timestamp: time.Now().Format(time.RFC3339)})
}

func (c *Client) stopListening() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.sttStream == nil {
		return
	}

	if err := c.sttStream.CloseSend(); err != nil {
		c.logger.Warn("Failed to close transcription stream", zap.Error(err))
	}
	if c.streamStop != nil {
		c.streamStop()
	}
	c.sttStream = nil
	c.streamStop = nil
	c.streamCtx = nil
}

// consumeFragments feeds transcript fragments into the utterance listener.
// When the upstream stream dies it is restarted a bounded number of times
// before the failure is reported to the device.
func (c *Client) consumeFragments(ctx context.Context, stream repositories.TranscriptStream, audioConfig repositories.AudioConfig) {
	for fragment := range stream.Fragments() {
		c.listener.OnFragment(fragment)
	}

	streamErr := stream.Err()
	if streamErr == nil || ctx.Err() != nil {
		// Normal end of stream or deliberate stop.
		return
	}

	c.logger.Warn("Transcription stream failed, attempting restart",
		zap.String("deviceID", c.deviceID),
		zap.Error(streamErr))

	backoff := retry.WithMaxRetries(uint64(c.hub.cfg.Listening.MaxStreamRestarts), retry.NewExponential(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		restarted, err := c.hub.sttRepo.StartStream(ctx, audioConfig)
		if err != nil {
			return retry.RetryableError(err)
		}

		c.mutex.Lock()
		c.sttStream = restarted
		c.mutex.Unlock()

		go c.consumeFragments(ctx, restarted, audioConfig)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		c.logger.Error("Transcription stream could not be restarted",
			zap.String("deviceID", c.deviceID),
			zap.Error(err))
		c.sendJSON(CreateErrorMessage("stt_failed", "transcription unavailable"))
	}
}

func (c *Client) sendJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		c.logger.Warn("Send buffer full, dropping message",
			zap.String("deviceID", c.deviceID))
	}
}

// Status implements usecase.ResultSink
func (c *Client) Status(state string) {
	c.sendJSON(CreateStatusMessage(state))
}

// UserQuery implements usecase.ResultSink
func (c *Client) UserQuery(text string) {
	c.sendJSON(CreateTextMessage(MessageTypeUserQuery, text))
}

// TextResponse implements usecase.ResultSink
func (c *Client) TextResponse(text string) {
	c.sendJSON(CreateTextMessage(MessageTypeResponseText, text))
}

// AudioStart implements usecase.ResultSink
func (c *Client) AudioStart() {
	c.sendJSON(&BaseMessage{Type: MessageTypeSpeakingStart, Timestamp: time.Now().Format(time.RFC3339)})
}

// AudioChunk implements usecase.ResultSink
func (c *Client) AudioChunk(data []byte) {
	select {
	case c.send <- WriteData{Type: websocket.BinaryMessage, Payload: data}:
	default:
		c.logger.Warn("Send buffer full, dropping audio chunk",
			zap.String("deviceID", c.deviceID))
	}
}

// AudioEnd implements usecase.ResultSink
func (c *Client) AudioEnd() {
	c.sendJSON(&BaseMessage{Type: MessageTypeSpeakingEnd, Timestamp: time.Now().Format(time.RFC3339)})
}

var _ usecase.ResultSink = (*Client)(nil)
