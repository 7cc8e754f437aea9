package nextbus

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/google/uuid"
)

// DefaultPriority is used for messages that carry no priority attribute.
const DefaultPriority = "Normal"

// DecodeMessages decodes a messages response. Messages whose trimmed text is
// empty are dropped.
func DecodeMessages(r io.Reader) ([]ServiceMessage, error) {
	d := &messageDecoder{out: []ServiceMessage{}}
	if err := decode(CommandMessages, r, d); err != nil {
		return nil, err
	}
	return d.out, nil
}

type messageDecoder struct {
	out []ServiceMessage

	routeTag string

	inMessage bool
	id        string
	priority  string

	inText bool
	text   strings.Builder
}

func (d *messageDecoder) start(el xml.StartElement) {
	switch el.Name.Local {
	case "route":
		d.routeTag, _ = attr(el, "tag")
	case "message":
		d.inMessage = true
		d.id = uuid.NewString()
		if id, ok := attr(el, "id"); ok {
			d.id = id
		}
		d.priority = DefaultPriority
		if p, ok := attr(el, "priority"); ok {
			d.priority = p
		}
		d.text.Reset()
	case "text":
		if d.inMessage {
			d.inText = true
			d.text.Reset()
		}
	}
}

func (d *messageDecoder) chars(data xml.CharData) {
	if d.inText {
		d.text.Write(data)
	}
}

func (d *messageDecoder) end(el xml.EndElement) {
	switch el.Name.Local {
	case "text":
		d.inText = false
	case "message":
		if !d.inMessage {
			return
		}
		d.inMessage = false
		text := strings.TrimSpace(d.text.String())
		if text == "" {
			return
		}
		d.out = append(d.out, ServiceMessage{
			ID:       d.id,
			Text:     text,
			Priority: d.priority,
			RouteTag: d.routeTag,
		})
	}
}
