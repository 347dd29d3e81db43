package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
)

type DeviceAuthRequest struct {
	SerialNumber string `json:"serial_number"`
	SecretKey    string `json:"secret_key"`
}

type DeviceAuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	DeviceID  string    `json:"device_id"`
}

var (
	serverAddr = flag.String("server", "localhost:8080", "server host:port")
	serial     = flag.String("serial", "STB-0001", "device serial number")
	secret     = flag.String("secret", "stoby-dev-secret", "device secret key")
	audioPath  = flag.String("audio", "sample_audio.webm", "audio file to stream")
)

func main() {
	flag.Parse()

	// First, authenticate and get a JWT token
	token, deviceID, err := authenticateDevice()
	if err != nil {
		log.Fatal("Failed to authenticate device:", err)
	}
	log.Printf("Successfully authenticated device: %s", deviceID)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	// Connect to the WebSocket server with JWT token
	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	headers := http.Header{}
	headers.Add("Authorization", "Bearer "+token)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), headers)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Start a goroutine to read messages from the server
	go handleIncomingMessage(c, done)

	streamAudioFile(c)

	// Wait for interrupt signal
	select {
	case <-done:
		return
	case <-interrupt:
		log.Println("interrupt")
		// Cleanly close the connection by sending a close message and then
		// waiting (with timeout) for the server to close the connection.
		err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Println("write close:", err)
			return
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return
	}
}

func authenticateDevice() (string, string, error) {
	authReq := DeviceAuthRequest{
		SerialNumber: *serial,
		SecretKey:    *secret,
	}

	jsonData, err := json.Marshal(authReq)
	if err != nil {
		return "", "", err
	}

	resp, err := http.Post("http://"+*serverAddr+"/api/v1/device/auth", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("authentication failed: %s", string(body))
	}

	var authResp DeviceAuthResponse
	if err := json.Unmarshal(body, &authResp); err != nil {
		return "", "", err
	}

	return authResp.Token, authResp.DeviceID, nil
}

func streamAudioFile(c *websocket.Conn) {
	log.Printf("🚀 Starting listening session at %s", time.Now().Format("15:04:05.000"))
	startMessage := map[string]interface{}{
		"type":      "listening_start",
		"timestamp": time.Now().Unix(),
	}

	if err := sendJSONMessage(c, startMessage); err != nil {
		log.Printf("Error sending listening_start: %v", err)
		return
	}
	time.Sleep(500 * time.Millisecond)

	audioFileData, err := os.ReadFile(*audioPath)
	if err != nil {
		log.Printf("Error reading audio file: %v", err)
		return
	}

	log.Printf("📁 Read audio file: %s (%d bytes)", *audioPath, len(audioFileData))

	// Send audio data in chunks, pacing them like a live microphone would
	chunkSize := 1024
	totalChunks := (len(audioFileData) + chunkSize - 1) / chunkSize

	log.Printf("📤 Sending %d audio chunks (chunk size: %d bytes)", totalChunks, chunkSize)
	audioStartTime := time.Now()

	for i := 0; i < totalChunks; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(audioFileData) {
			end = len(audioFileData)
		}

		if err := c.WriteMessage(websocket.BinaryMessage, audioFileData[start:end]); err != nil {
			log.Printf("Error sending audio chunk %d: %v", i, err)
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	log.Printf("📤 Finished sending audio chunks in %v", time.Since(audioStartTime))
	log.Printf("✅ Audio sent. Leaving the session open so silence can trigger a flush...")
}

func sendJSONMessage(c *websocket.Conn, message map[string]interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, data)
}

func handleIncomingMessage(c *websocket.Conn, done chan struct{}) {
	defer close(done)
	var audioFile *os.File
	var speakingStartTime time.Time
	var audioChunkCount int

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			log.Println("read:", err)
			return
		}

		if messageType == websocket.TextMessage {
			var msg map[string]interface{}
			if err := json.Unmarshal(message, &msg); err != nil {
				log.Println("unmarshal error:", err)
				continue
			}

			msgType, _ := msg["type"].(string)
			switch msgType {
			case "status":
				log.Printf("🤖 Status: %v", msg["state"])
			case "user_query":
				log.Printf("🗣️  Heard: %v", msg["text"])
			case "response_text":
				log.Printf("💬 Reply: %v", msg["text"])
			case "speaking_start":
				speakingStartTime = time.Now()
				audioChunkCount = 0
				audioDir := "audio_responses"
				if err := os.MkdirAll(audioDir, 0755); err != nil {
					log.Printf("Error creating audio response directory: %v", err)
					return
				}
				filename := fmt.Sprintf("%d.pcm", time.Now().Unix())
				path := filepath.Join(audioDir, filename)
				audioFile, err = os.Create(path)
				if err != nil {
					log.Printf("Error creating audio response file: %v", err)
					return
				}
				log.Printf("🎵 Speaking started, writing audio to %s", path)
			case "speaking_end":
				log.Printf("🎵 Speaking ended - Duration: %v, Chunks received: %d", time.Since(speakingStartTime), audioChunkCount)
				if audioFile != nil {
					audioFile.Close()
					audioFile = nil
				}
			case "error":
				log.Printf("❌ Server error: %v (%v)", msg["message"], msg["error_code"])
			default:
				log.Printf("Received message: %s", string(message))
			}
		} else if messageType == websocket.BinaryMessage {
			audioChunkCount++
			log.Printf("🎵 Received audio chunk #%d (%d bytes)", audioChunkCount, len(message))
			if audioFile != nil {
				if _, err := audioFile.Write(message); err != nil {
					log.Printf("Error writing audio chunk to file: %v", err)
				}
			}
		}
	}
}
