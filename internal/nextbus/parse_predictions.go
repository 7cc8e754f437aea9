package nextbus

import (
	"encoding/xml"
	"io"
)

// DecodePredictions decodes a predictions response into one group per
// <direction>. A direction without valid predictions still yields a group.
func DecodePredictions(r io.Reader) ([]PredictionGroup, error) {
	d := &predictionDecoder{groups: []PredictionGroup{}}
	if err := decode(CommandPredictions, r, d); err != nil {
		return nil, err
	}
	return d.groups, nil
}

type predictionDecoder struct {
	groups []PredictionGroup

	inPredictions bool
	stopTitle     string

	inDirection    bool
	directionTitle string
	current        []Prediction
}

func (d *predictionDecoder) start(el xml.StartElement) {
	switch el.Name.Local {
	case "predictions":
		d.inPredictions = true
		d.stopTitle, _ = attr(el, "stopTitle")
	case "direction":
		if d.inPredictions {
			d.inDirection = true
			d.directionTitle, _ = attr(el, "title")
			d.current = []Prediction{}
		}
	case "prediction":
		if !d.inDirection {
			return
		}
		if p, ok := predictionFrom(el); ok {
			d.current = append(d.current, p)
		}
	}
}

func (d *predictionDecoder) end(el xml.EndElement) {
	switch el.Name.Local {
	case "direction":
		if d.inPredictions && d.inDirection {
			d.groups = append(d.groups, PredictionGroup{
				DirectionTitle: d.directionTitle,
				StopTitle:      d.stopTitle,
				Predictions:    d.current,
			})
			d.inDirection = false
		}
	case "predictions":
		d.inPredictions = false
	}
}

func (d *predictionDecoder) chars(xml.CharData) {}

func predictionFrom(el xml.StartElement) (Prediction, bool) {
	epoch, ok := int64Attr(el, "epochTime")
	if !ok {
		return Prediction{}, false
	}
	secs, ok := intAttr(el, "seconds")
	if !ok {
		return Prediction{}, false
	}
	mins, ok := intAttr(el, "minutes")
	if !ok {
		return Prediction{}, false
	}
	vehicle, ok := attr(el, "vehicle")
	if !ok {
		return Prediction{}, false
	}
	return Prediction{
		EpochTime: epoch,
		Seconds:   secs,
		Minutes:   mins,
		Vehicle:   vehicle,
		DirTag:    optAttr(el, "dirTag"),
		Branch:    optAttr(el, "branch"),
	}, true
}
