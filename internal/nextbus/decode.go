package nextbus

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Command names one query of the publicXMLFeed API.
type Command string

const (
	CommandVehicleLocations Command = "vehicleLocations"
	CommandRouteConfig      Command = "routeConfig"
	CommandPredictions      Command = "predictions"
	CommandMessages         Command = "messages"
)

var errEmptyDocument = errors.New("document has no root element")

// ParseError reports a document the XML tokenizer rejected. Malformed
// records inside a well-formed document never produce one.
type ParseError struct {
	Command Command
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Command, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// elementHandler receives the token stream of one document.
type elementHandler interface {
	start(el xml.StartElement)
	end(el xml.EndElement)
	chars(data xml.CharData)
}

// decode runs a forward-only token loop over r, so memory stays bounded by
// what the handler keeps rather than by document size.
func decode(cmd Command, r io.Reader, h elementHandler) error {
	dec := xml.NewDecoder(r)
	sawRoot := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &ParseError{Command: cmd, Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			sawRoot = true
			h.start(t)
		case xml.EndElement:
			h.end(t)
		case xml.CharData:
			h.chars(t)
		}
	}
	if !sawRoot {
		return &ParseError{Command: cmd, Err: errEmptyDocument}
	}
	return nil
}

func attr(el xml.StartElement, name string) (string, bool) {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// optAttr maps a missing attribute to nil.
func optAttr(el xml.StartElement, name string) *string {
	v, ok := attr(el, name)
	if !ok {
		return nil
	}
	return &v
}

func intAttr(el xml.StartElement, name string) (int, bool) {
	s, ok := attr(el, name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

func int64Attr(el xml.StartElement, name string) (int64, bool) {
	s, ok := attr(el, name)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

// floatAttr rejects NaN and infinities along with unparsable values.
func floatAttr(el xml.StartElement, name string) (float64, bool) {
	s, ok := attr(el, name)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// boolAttr is true only for the literal "true".
func boolAttr(el xml.StartElement, name string) bool {
	s, _ := attr(el, name)
	return s == "true"
}
