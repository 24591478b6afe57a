package bilichat

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the shape of config.json: the one room this process subscribes to.
type Config struct {
	RoomID uint32 `json:"room_id"`
}

// LoadConfig reads and parses config.json from path. Absence or an
// unparseable/zero room_id is a fatal startup error.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	if cfg.RoomID == 0 {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("room_id is required")}
	}
	return &cfg, nil
}
