package cuos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/matifariasc/vosk-speech/internal/transcript"
)

const (
	defaultMedio   = "RADIOLAMETRO"
	requestTimeout = 5 * time.Second
	maxRetryWait   = 30 * time.Second
	maxRetries     = 3
)

// retryInitialInterval seeds the backoff between delivery attempts. Tests
// shrink it.
var retryInitialInterval = 500 * time.Millisecond

// Payload is one outbound record for the CUOS ingestion API.
type Payload struct {
	Type      string `json:"type"`
	MediaCuos string `json:"media_cuos"`
	Date      string `json:"date"`
	Text      string `json:"text"`
}

// Sender forwards committed segments to the CUOS endpoint, one POST per
// segment. Construction with an empty endpoint yields a nil sender, which
// every method accepts as a no-op.
type Sender struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func NewSender(endpoint string, logger *slog.Logger) *Sender {
	if endpoint == "" {
		return nil
	}
	return &Sender{
		endpoint: endpoint,
		client:   &http.Client{Timeout: requestTimeout},
		logger:   logger,
	}
}

// BuildPayloads maps a record's segments to outbound payloads. Segments with
// blank text or an unusable start time are skipped.
func BuildPayloads(medio, fecha string, rec transcript.FileRecord) []Payload {
	var out []Payload
	for _, s := range rec.Registros {
		m := strings.TrimSpace(s.Medio)
		if m == "" {
			m = strings.TrimSpace(medio)
		}
		if m == "" {
			m = defaultMedio
		}
		f := strings.TrimSpace(s.Fecha)
		if f == "" {
			f = fecha
		}
		inicio := cleanInicio(s.Inicio)
		texto := strings.TrimSpace(s.Texto)
		if f == "" || inicio == "" || texto == "" {
			continue
		}
		out = append(out, Payload{
			Type:      "Radio",
			MediaCuos: m,
			Date:      f + " " + inicio,
			Text:      texto,
		})
	}
	return out
}

// cleanInicio normalizes a segment start to HH:MM:SS: fractional seconds are
// dropped and a bare HH:MM gets padded.
func cleanInicio(value string) string {
	inicio := strings.TrimSpace(value)
	if i := strings.IndexByte(inicio, '.'); i >= 0 {
		inicio = inicio[:i]
	}
	if len(inicio) == 5 {
		inicio += ":00"
	}
	return inicio
}

// Send posts each payload in order, retrying transient failures with
// exponential backoff. A payload that still fails aborts the rest of the
// batch; already-sent items are not rolled back. Returns the number sent.
func (s *Sender) Send(ctx context.Context, payloads []Payload) (int, error) {
	if s == nil || len(payloads) == 0 {
		return 0, nil
	}

	sent := 0
	for _, p := range payloads {
		post := func() error {
			return s.post(ctx, p)
		}
		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(retryInitialInterval),
			backoff.WithMaxInterval(maxRetryWait),
		), maxRetries), ctx)
		if err := backoff.Retry(post, policy); err != nil {
			return sent, fmt.Errorf("cuos delivery aborted after %d of %d payloads: %w", sent, len(payloads), err)
		}
		sent++
	}
	return sent, nil
}

func (s *Sender) post(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("marshal payload: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post payload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("cuos returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return backoff.Permanent(fmt.Errorf("cuos rejected payload: %d", resp.StatusCode))
	}
	return nil
}
