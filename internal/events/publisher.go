package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectTranscriptStored announces a freshly persisted transcript.
const SubjectTranscriptStored = "vosk.transcript.stored"

// StoredEvent is published after each successful ingestion commit.
type StoredEvent struct {
	File     string   `json:"file"`
	Channel  string   `json:"channel"`
	Segments int      `json:"segments"`
	Duration *float64 `json:"duration,omitempty"`
	StoredAt string   `json:"stored_at"`
}

// Publisher emits ingestion events on NATS. A nil publisher is valid and
// drops everything, so event publishing stays optional.
type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func Connect(url, token string, logger *slog.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Publisher{conn: nc, logger: logger}, nil
}

// TranscriptStored publishes a stored event. Failures are reported to the
// caller but never interrupt ingestion.
func (p *Publisher) TranscriptStored(ev StoredEvent) error {
	if p == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.conn.Publish(SubjectTranscriptStored, payload)
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.conn.Drain()
	p.conn.Close()
}
