package query

import (
	"net/url"
	"strconv"
	"time"

	"github.com/matifariasc/vosk-speech/internal/transcript"
)

// Params are the decoded query filters. All fields are optional and compose;
// a point filter and a range filter are mutually exclusive, with the point
// taking precedence when both are supplied.
type Params struct {
	File  string
	Medio string
	Fecha string
	Hours int // freshness window; 0 means use the engine default

	Point *time.Time
	Start *time.Time
	End   *time.Time

	Newest bool
	Text   bool
}

// ParseParams decodes the request query string. Malformed or contradictory
// temporal values return an InputError.
func ParseParams(values url.Values) (Params, error) {
	p := Params{
		File:   values.Get("file"),
		Medio:  values.Get("medio"),
		Fecha:  values.Get("fecha"),
		Newest: values.Get("order") == "newest",
		Text:   values.Has("text"),
	}

	if p.Fecha != "" {
		if _, err := time.Parse("2006-01-02", p.Fecha); err != nil {
			return Params{}, badInput("fecha", "expected YYYY-MM-DD")
		}
	}

	if v := values.Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Params{}, badInput("hours", "expected a positive integer")
		}
		p.Hours = n
	}

	if err := parsePoint(values, &p); err != nil {
		return Params{}, err
	}
	if p.Point == nil {
		if err := parseRange(values, &p); err != nil {
			return Params{}, err
		}
	}

	return p, nil
}

func parsePoint(values url.Values, p *Params) error {
	if v := values.Get("fechahora"); v != "" {
		t, ok := transcript.ParseInstant(v, "")
		if !ok {
			return badInput("fechahora", "expected YYYY-MM-DD HH:MM[:SS]")
		}
		p.Point = &t
		return nil
	}
	if v := values.Get("hora"); v != "" {
		if p.Fecha == "" {
			return badInput("hora", "requires fecha")
		}
		t, ok := transcript.ParseInstant(v, p.Fecha)
		if !ok {
			return badInput("hora", "expected HH:MM[:SS[.sss]]")
		}
		p.Point = &t
	}
	return nil
}

func parseRange(values url.Values, p *Params) error {
	start, err := rangeBound(values, "fechahora_inicio", "hora_inicio", p.Fecha)
	if err != nil {
		return err
	}
	endFecha := values.Get("fecha_fin")
	if endFecha == "" {
		endFecha = p.Fecha
	}
	end, err := rangeBound(values, "fechahora_fin", "hora_fin", endFecha)
	if err != nil {
		return err
	}

	if start != nil && end != nil && start.After(*end) {
		return badInput("fechahora_inicio", "range start exceeds range end")
	}
	p.Start = start
	p.End = end
	return nil
}

func rangeBound(values url.Values, absParam, clockParam, fecha string) (*time.Time, error) {
	if v := values.Get(absParam); v != "" {
		t, ok := transcript.ParseInstant(v, "")
		if !ok {
			return nil, badInput(absParam, "expected YYYY-MM-DD HH:MM[:SS]")
		}
		return &t, nil
	}
	if v := values.Get(clockParam); v != "" {
		if fecha == "" {
			return nil, badInput(clockParam, "requires fecha")
		}
		t, ok := transcript.ParseInstant(v, fecha)
		if !ok {
			return nil, badInput(clockParam, "expected HH:MM[:SS[.sss]]")
		}
		return &t, nil
	}
	return nil, nil
}
