// Package tuning holds runtime settings. None of them change generated
// content.
package tuning

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Workers   int `yaml:"workers" json:"workers"`
	QueueSize int `yaml:"queue_size" json:"queue_size"`

	CacheEnabled  bool `yaml:"cache_enabled" json:"cache_enabled"`
	CacheCapacity int  `yaml:"cache_capacity" json:"cache_capacity"`
	CacheShards   int  `yaml:"cache_shards" json:"cache_shards"`
	// PlacementCapacity bounds the structure placement cache, in regions.
	PlacementCapacity int `yaml:"placement_capacity" json:"placement_capacity"`

	FaultLogDir string `yaml:"fault_log_dir" json:"fault_log_dir"`
	IndexPath   string `yaml:"index_path" json:"index_path"`
}

func Defaults() Tuning {
	w := runtime.GOMAXPROCS(0)
	return Tuning{
		Workers:           w,
		QueueSize:         w * 4,
		CacheEnabled:      true,
		CacheCapacity:     4096,
		CacheShards:       16,
		PlacementCapacity: 1024,
		FaultLogDir:       "faults",
		IndexPath:         "index/chunks.sqlite",
	}
}

// Load reads a tuning file over Defaults. Keys missing from the file keep
// their default value; unknown keys are an error.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.Workers <= 0:
		return fmt.Errorf("workers must be positive, got %d", t.Workers)
	case t.QueueSize <= 0:
		return fmt.Errorf("queue_size must be positive, got %d", t.QueueSize)
	case t.CacheShards <= 0:
		return fmt.Errorf("cache_shards must be positive, got %d", t.CacheShards)
	case t.CacheEnabled && t.CacheCapacity < t.CacheShards:
		return fmt.Errorf("cache_capacity %d is below cache_shards %d", t.CacheCapacity, t.CacheShards)
	case t.PlacementCapacity < 0:
		return fmt.Errorf("placement_capacity must not be negative, got %d", t.PlacementCapacity)
	}
	return nil
}
