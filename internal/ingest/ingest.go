// Package ingest accepts audio over WebSocket and feeds it into the
// pipeline. It is the transport by which an external capture process
// (microphone reader, room recorder, SIP bridge) delivers labeled
// streams without linking against this program.
//
// Protocol: the client opens a WebSocket and sends exactly one JSON text
// message, the hello:
//
//	{"source": "near", "sample_rate": 16000, "channels": 1, "codec": "pcm16"}
//
// then streams binary frames: raw little-endian 16-bit PCM for codec
// "pcm16" (converted server-side to the pipeline format), or one Opus
// packet per message for codec "opus" (decoded straight to the pipeline
// format). One connection per source label; while a label is connected,
// further hellos naming it are rejected.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/earshot-audio/earshot/pkg/audio"
	"github.com/earshot-audio/earshot/pkg/audio/opus"
)

const (
	codecPCM16 = "pcm16"
	codecOpus  = "opus"

	// helloTimeout bounds how long a fresh connection may stall before
	// sending its hello.
	helloTimeout = 10 * time.Second

	// maxFrameBytes caps a single WebSocket message. A whole second of
	// 48 kHz stereo PCM fits with room to spare.
	maxFrameBytes = 1 << 20

	// maxSourceLen bounds the source label length.
	maxSourceLen = 64
)

// errNotBinary ends a connection that sent a second text message where
// audio frames were expected.
var errNotBinary = errors.New("ingest: binary audio frames expected after hello")

// Sink consumes the decoded, pipeline-format frames. It is implemented
// by the pipeline orchestrator.
type Sink interface {
	// Process delivers one PCM frame for source. An error means the sink
	// no longer accepts frames and the connection should end.
	Process(source string, pcm []byte, now time.Time) error

	// Flush finalizes any active utterance on source. Called when the
	// source's connection ends.
	Flush(source string)
}

// Server is the /ingest WebSocket handler.
type Server struct {
	sink   Sink
	target audio.Format

	mu     sync.Mutex
	active map[string]bool
}

// New creates a Server feeding sink with frames in the target format.
func New(sink Sink, target audio.Format) *Server {
	if target.SampleRate <= 0 {
		target.SampleRate = 16000
	}
	if target.Channels <= 0 {
		target.Channels = 1
	}
	return &Server{
		sink:   sink,
		target: target,
		active: make(map[string]bool),
	}
}

// hello is the first message on every connection.
type hello struct {
	Source     string `json:"source"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Codec      string `json:"codec"`
}

// ServeHTTP upgrades the connection and runs it to completion. The
// source's detector is flushed when the connection ends, whatever the
// reason, so half-spoken utterances still get transcribed.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("ingest: websocket accept failed",
			"remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxFrameBytes)

	ctx := r.Context()
	h, err := s.readHello(ctx, conn)
	if err != nil {
		slog.Debug("ingest: rejecting connection",
			"remote", r.RemoteAddr, "error", err)
		conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}

	if !s.register(h.Source) {
		slog.Warn("ingest: duplicate source rejected",
			"source", h.Source, "remote", r.RemoteAddr)
		conn.Close(websocket.StatusPolicyViolation, "source already connected")
		return
	}
	defer s.release(h.Source)

	slog.Info("ingest: source connected",
		"source", h.Source, "codec", h.Codec,
		"format", audio.Format{SampleRate: h.SampleRate, Channels: h.Channels}.String(),
		"remote", r.RemoteAddr)

	err = s.readFrames(ctx, conn, h)
	switch {
	case errors.Is(err, errNotBinary):
		conn.Close(websocket.StatusUnsupportedData, "binary audio frames expected")
	case websocket.CloseStatus(err) != -1:
		// Client sent a close frame; nothing more to say.
	default:
		conn.Close(websocket.StatusGoingAway, "ingest stopped")
	}
	slog.Debug("ingest: connection ended", "source", h.Source, "error", err)
}

// readHello reads and validates the opening message.
func (s *Server) readHello(ctx context.Context, conn *websocket.Conn) (hello, error) {
	ctx, cancel := context.WithTimeout(ctx, helloTimeout)
	defer cancel()

	typ, data, err := conn.Read(ctx)
	if err != nil {
		return hello{}, fmt.Errorf("read hello: %w", err)
	}
	if typ != websocket.MessageText {
		return hello{}, errors.New("hello must be a text message")
	}

	var h hello
	if err := json.Unmarshal(data, &h); err != nil {
		return hello{}, fmt.Errorf("parse hello: %w", err)
	}
	if h.Source == "" {
		return hello{}, errors.New("hello: source must not be empty")
	}
	if len(h.Source) > maxSourceLen {
		return hello{}, fmt.Errorf("hello: source exceeds %d bytes", maxSourceLen)
	}
	if h.Codec == "" {
		h.Codec = codecPCM16
	}
	switch h.Codec {
	case codecPCM16:
		if h.SampleRate <= 0 || h.Channels <= 0 {
			return hello{}, errors.New("hello: pcm16 requires sample_rate and channels")
		}
	case codecOpus:
		// The packets carry their own format; the decoder outputs the
		// pipeline format directly.
	default:
		return hello{}, fmt.Errorf("hello: unsupported codec %q", h.Codec)
	}
	return h, nil
}

// readFrames consumes binary frames until the connection or sink ends.
func (s *Server) readFrames(ctx context.Context, conn *websocket.Conn, h hello) error {
	var decode func(data []byte) ([]byte, error)
	switch h.Codec {
	case codecOpus:
		dec, err := opus.NewDecoder(s.target.SampleRate, s.target.Channels)
		if err != nil {
			return fmt.Errorf("create opus decoder: %w", err)
		}
		decode = dec.Decode
	default:
		conv := &audio.Converter{Target: s.target}
		decode = func(data []byte) ([]byte, error) {
			frame := conv.Convert(audio.Frame{
				Data:       data,
				SampleRate: h.SampleRate,
				Channels:   h.Channels,
			})
			return frame.Data, nil
		}
	}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageBinary {
			return errNotBinary
		}

		pcm, err := decode(data)
		if err != nil {
			slog.Warn("ingest: dropping undecodable frame",
				"source", h.Source, "error", err)
			continue
		}
		if len(pcm) == 0 {
			continue
		}
		if err := s.sink.Process(h.Source, pcm, time.Now()); err != nil {
			return err
		}
	}
}

// register claims a source label. It reports false when the label is
// already held by a live connection.
func (s *Server) register(source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[source] {
		return false
	}
	s.active[source] = true
	return true
}

// release flushes the source's detector and frees its label.
func (s *Server) release(source string) {
	s.sink.Flush(source)
	s.mu.Lock()
	delete(s.active, source)
	s.mu.Unlock()
	slog.Info("ingest: source disconnected", "source", source)
}
