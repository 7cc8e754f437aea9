package nextbus

import (
	"encoding/xml"
	"io"
)

// DecodeRouteConfig decodes a routeConfig response.
//
// The feed reuses the <stop> element: at route level it is a full stop
// record, inside <direction> it only references a stop by tag. The decoder
// tracks whether it is inside a direction to tell the two apart.
func DecodeRouteConfig(r io.Reader) (*RouteConfig, error) {
	d := &routeConfigDecoder{
		out: RouteConfig{
			Stops:      []Stop{},
			Directions: []Direction{},
			Paths:      [][]PathPoint{},
		},
	}
	if err := decode(CommandRouteConfig, r, d); err != nil {
		return nil, err
	}
	return &d.out, nil
}

type routeConfigDecoder struct {
	out RouteConfig

	inDirection bool
	direction   Direction

	inPath bool
	path   []PathPoint
}

func (d *routeConfigDecoder) start(el xml.StartElement) {
	switch el.Name.Local {
	case "route":
		d.out.Tag, _ = attr(el, "tag")
		d.out.Title, _ = attr(el, "title")
		d.out.Color, _ = attr(el, "color")
		d.out.OppositeColor, _ = attr(el, "oppositeColor")

	case "stop":
		if d.inDirection {
			if tag, ok := attr(el, "tag"); ok {
				d.direction.StopTags = append(d.direction.StopTags, tag)
			}
			return
		}
		if s, ok := stopFrom(el); ok {
			d.out.Stops = append(d.out.Stops, s)
		}

	case "direction":
		d.inDirection = true
		d.direction = Direction{StopTags: []string{}}
		d.direction.Tag, _ = attr(el, "tag")
		d.direction.Title, _ = attr(el, "title")
		d.direction.Name, _ = attr(el, "name")
		d.direction.UseForUI = boolAttr(el, "useForUI")

	case "path":
		d.inPath = true
		d.path = nil

	case "point":
		if !d.inPath {
			return
		}
		lat, ok := floatAttr(el, "lat")
		if !ok {
			return
		}
		lon, ok := floatAttr(el, "lon")
		if !ok {
			return
		}
		d.path = append(d.path, PathPoint{Lat: lat, Lon: lon})
	}
}

func (d *routeConfigDecoder) end(el xml.EndElement) {
	switch el.Name.Local {
	case "direction":
		if d.inDirection {
			d.out.Directions = append(d.out.Directions, d.direction)
			d.inDirection = false
		}
	case "path":
		if d.inPath && len(d.path) > 0 {
			d.out.Paths = append(d.out.Paths, d.path)
		}
		d.inPath = false
		d.path = nil
	}
}

func (d *routeConfigDecoder) chars(xml.CharData) {}

func stopFrom(el xml.StartElement) (Stop, bool) {
	tag, ok := attr(el, "tag")
	if !ok {
		return Stop{}, false
	}
	title, ok := attr(el, "title")
	if !ok {
		return Stop{}, false
	}
	lat, ok := floatAttr(el, "lat")
	if !ok {
		return Stop{}, false
	}
	lon, ok := floatAttr(el, "lon")
	if !ok {
		return Stop{}, false
	}
	return Stop{
		Tag:    tag,
		Title:  title,
		Lat:    lat,
		Lon:    lon,
		StopID: optAttr(el, "stopId"),
	}, true
}
