package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultHeadwayMinutes applies to routes missing from the table.
const DefaultHeadwayMinutes = 10.0

// RouteInfo is one monitored route and its expected headway.
type RouteInfo struct {
	Tag            string  `yaml:"tag" json:"tag" validate:"required"`
	Name           string  `yaml:"name" json:"name"`
	HeadwayMinutes float64 `yaml:"headway_minutes" json:"headway_minutes" validate:"gt=0"`
}

// RouteTable is the ordered set of monitored routes.
type RouteTable struct {
	Routes []RouteInfo `yaml:"routes" validate:"required,min=1,unique=Tag,dive"`
}

// DefaultRoutes is the Toronto streetcar network.
func DefaultRoutes() *RouteTable {
	return &RouteTable{Routes: []RouteInfo{
		{Tag: "501", Name: "501 Queen", HeadwayMinutes: 5},
		{Tag: "503", Name: "503 Kingston Rd", HeadwayMinutes: 15},
		{Tag: "504", Name: "504 King", HeadwayMinutes: 5},
		{Tag: "505", Name: "505 Dundas", HeadwayMinutes: 8},
		{Tag: "506", Name: "506 Carlton", HeadwayMinutes: 8},
		{Tag: "509", Name: "509 Harbourfront", HeadwayMinutes: 10},
		{Tag: "510", Name: "510 Spadina", HeadwayMinutes: 6},
		{Tag: "511", Name: "511 Bathurst", HeadwayMinutes: 8},
		{Tag: "512", Name: "512 St Clair", HeadwayMinutes: 6},
	}}
}

// LoadRoutes reads and validates a YAML route table. An empty path returns
// DefaultRoutes.
func LoadRoutes(path string) (*RouteTable, error) {
	if path == "" {
		return DefaultRoutes(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route table: %w", err)
	}
	return ParseRoutes(data)
}

// ParseRoutes decodes and validates a YAML route table.
func ParseRoutes(data []byte) (*RouteTable, error) {
	var rt RouteTable
	if err := yaml.Unmarshal(data, &rt); err != nil {
		return nil, fmt.Errorf("decode route table: %w", err)
	}
	for i := range rt.Routes {
		if rt.Routes[i].Name == "" {
			rt.Routes[i].Name = rt.Routes[i].Tag
		}
	}
	if err := validator.New().Struct(&rt); err != nil {
		return nil, fmt.Errorf("validate route table: %w", err)
	}
	return &rt, nil
}

// Lookup returns the entry for tag.
func (rt *RouteTable) Lookup(tag string) (RouteInfo, bool) {
	for _, r := range rt.Routes {
		if r.Tag == tag {
			return r, true
		}
	}
	return RouteInfo{}, false
}

// Tags returns the monitored route tags in table order.
func (rt *RouteTable) Tags() []string {
	tags := make([]string, len(rt.Routes))
	for i, r := range rt.Routes {
		tags[i] = r.Tag
	}
	return tags
}
