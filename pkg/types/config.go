// Package types provides configuration types for the risk simulator.
package types

import "time"

// ServerConfig represents server configuration
type ServerConfig struct {
	Host          string        `json:"host"`
	Port          int           `json:"port"`
	WebSocketPath string        `json:"websocketPath"`
	ReadTimeout   time.Duration `json:"readTimeout"`
	WriteTimeout  time.Duration `json:"writeTimeout"`
	RateLimit     float64       `json:"rateLimit"` // run submissions per second
	RateBurst     int           `json:"rateBurst"`
	RunRetention  time.Duration `json:"runRetention"`
	// MaxSimulations bounds the simulation count accepted per request.
	MaxSimulations int `json:"maxSimulations"`
}

// SimulationConfig represents engine sizing configuration
type SimulationConfig struct {
	BatchSize         int `json:"batchSize"`
	MaxWorkers        int `json:"maxWorkers"` // 0 derives from hardware parallelism
	ReservoirCapacity int `json:"reservoirCapacity"`
	ChartSamples      int `json:"chartSamples"`
}
