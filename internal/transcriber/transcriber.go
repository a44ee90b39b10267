package transcriber

import "context"

// Segment is one recognized speech span, in seconds from the start of the
// media file.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Result is the output of one transcription call. Duration is the whole-file
// length in seconds when the backend reports it.
type Result struct {
	Duration *float64
	Segments []Segment
}

// Transcriber turns a media file into ordered speech segments. Decoding and
// recognition live behind this boundary; a call may block for the length of
// the recording.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string) (Result, error)
}
