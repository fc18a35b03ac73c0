package cli

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/conflict-engine/internal/learner"
	"github.com/ChuLiYu/conflict-engine/internal/orchestrator"
	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

// Storage drivers
const (
	StorageSQLite = "sqlite"
	StorageFile   = "file"
	StorageMemory = "memory"
)

// Generator modes
const (
	GeneratorFile = "file"
	GeneratorGRPC = "grpc"
)

// Config represents the complete system configuration structure
// Maps config file fields through YAML tags
type Config struct {
	Engine struct {
		Dataset           string         `yaml:"dataset"`
		TopConflicts      int            `yaml:"top_conflicts"`
		GenerationTimeout time.Duration  `yaml:"generation_timeout"`
		Weights           *types.Weights `yaml:"weights"`
	} `yaml:"engine"`

	Learner struct {
		LearningRate float64 `yaml:"learning_rate"`
		Floor        float64 `yaml:"floor"`
		Threshold    float64 `yaml:"threshold"`
	} `yaml:"learner"`

	Storage struct {
		// sqlite | file | memory. sqlite and file keep a feedback record store
		// next to the checkpoints; with memory, feedback lives only in the run.
		Driver        string `yaml:"driver"`
		SQLitePath    string `yaml:"sqlite_path"`
		CheckpointDir string `yaml:"checkpoint_dir"`
	} `yaml:"storage"`

	Journal struct {
		Enabled      bool   `yaml:"enabled"`
		Path         string `yaml:"path"`
		SyncOnAppend bool   `yaml:"sync_on_append"`
	} `yaml:"journal"`

	Generator struct {
		Mode    string `yaml:"mode"` // file | grpc
		Catalog string `yaml:"catalog"`
		Address string `yaml:"address"`
	} `yaml:"generator"`

	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	Worker struct {
		WorkerCount int           `yaml:"worker_count"`
		TaskTimeout time.Duration `yaml:"task_timeout"`
	} `yaml:"worker"`
}

// applyDefaults fills every zero value
func (c *Config) applyDefaults() {
	if c.Engine.Dataset == "" {
		c.Engine.Dataset = "configs/dataset.yaml"
	}
	if c.Engine.TopConflicts == 0 {
		c.Engine.TopConflicts = orchestrator.DefaultTopConflicts
	}
	if c.Engine.GenerationTimeout == 0 {
		c.Engine.GenerationTimeout = orchestrator.DefaultGenerationTimeout
	}
	if c.Learner.LearningRate == 0 {
		c.Learner.LearningRate = learner.DefaultLearningRate
	}
	if c.Learner.Floor == 0 {
		c.Learner.Floor = learner.DefaultFloor
	}
	if c.Learner.Threshold == 0 {
		c.Learner.Threshold = learner.DefaultThreshold
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageSQLite
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/conflict-engine.db"
	}
	if c.Storage.CheckpointDir == "" {
		c.Storage.CheckpointDir = "data/checkpoints"
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "data/journal.wal"
	}
	if c.Generator.Mode == "" {
		c.Generator.Mode = GeneratorFile
	}
	if c.Generator.Catalog == "" {
		c.Generator.Catalog = "configs/solutions.yaml"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 50051
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Worker.WorkerCount == 0 {
		c.Worker.WorkerCount = 4
	}
	if c.Worker.TaskTimeout == 0 {
		c.Worker.TaskTimeout = 2 * time.Minute
	}
}

// validate rejects settings no component can run with
func (c *Config) validate() error {
	switch c.Storage.Driver {
	case StorageSQLite, StorageFile, StorageMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Generator.Mode {
	case GeneratorFile:
	case GeneratorGRPC:
		if c.Generator.Address == "" {
			return fmt.Errorf("generator mode grpc requires generator.address")
		}
	default:
		return fmt.Errorf("unknown generator mode %q", c.Generator.Mode)
	}
	if c.Engine.Weights != nil {
		if err := c.Engine.Weights.Validate(); err != nil {
			return fmt.Errorf("engine.weights: %w", err)
		}
	}
	if c.Engine.TopConflicts < 0 {
		return fmt.Errorf("engine.top_conflicts must not be negative")
	}
	return nil
}

// weights returns the configured initial weights
func (c *Config) weights() types.Weights {
	if c.Engine.Weights != nil {
		return *c.Engine.Weights
	}
	return types.DefaultWeights()
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}
