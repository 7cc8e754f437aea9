package nextbus

import (
	"encoding/xml"
	"io"
)

// DecodeVehicleLocations decodes a vehicleLocations response. Vehicles with a
// missing or unparsable required attribute are skipped. An <Error> element
// yields an empty list, not an error.
func DecodeVehicleLocations(r io.Reader) (*VehicleLocations, error) {
	d := &vehicleDecoder{out: VehicleLocations{Vehicles: []Vehicle{}}}
	if err := decode(CommandVehicleLocations, r, d); err != nil {
		return nil, err
	}
	return &d.out, nil
}

type vehicleDecoder struct {
	out VehicleLocations
}

func (d *vehicleDecoder) start(el xml.StartElement) {
	switch el.Name.Local {
	case "vehicle":
		if v, ok := vehicleFrom(el); ok {
			d.out.Vehicles = append(d.out.Vehicles, v)
		}
	case "lastTime":
		if t, ok := int64Attr(el, "time"); ok {
			d.out.LastTime = t
		}
	case "Error":
		// Recognized; the agency reports errors in-band and we return no vehicles.
	}
}

func (d *vehicleDecoder) end(xml.EndElement)  {}
func (d *vehicleDecoder) chars(xml.CharData) {}

func vehicleFrom(el xml.StartElement) (Vehicle, bool) {
	id, ok := attr(el, "id")
	if !ok {
		return Vehicle{}, false
	}
	routeTag, ok := attr(el, "routeTag")
	if !ok {
		return Vehicle{}, false
	}
	lat, ok := floatAttr(el, "lat")
	if !ok {
		return Vehicle{}, false
	}
	lon, ok := floatAttr(el, "lon")
	if !ok {
		return Vehicle{}, false
	}
	heading, ok := intAttr(el, "heading")
	if !ok {
		return Vehicle{}, false
	}
	speed, ok := intAttr(el, "speedKmHr")
	if !ok {
		return Vehicle{}, false
	}
	secs, ok := intAttr(el, "secsSinceReport")
	if !ok {
		return Vehicle{}, false
	}
	return Vehicle{
		ID:              id,
		RouteTag:        routeTag,
		DirTag:          optAttr(el, "dirTag"),
		Lat:             lat,
		Lon:             lon,
		Heading:         heading,
		SpeedKmHr:       speed,
		SecsSinceReport: secs,
		Predictable:     boolAttr(el, "predictable"),
	}, true
}
