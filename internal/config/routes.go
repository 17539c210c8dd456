package config

import "github.com/bezhai/inner-bot-server-sub001/internal/types"

// RoutesConfig is the on-disk routing table, keyed by route id.
type RoutesConfig struct {
	Routes map[string]types.RouteTarget `yaml:"routes"`
}
