package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Scenario describes one independent simulation run. Zero-valued parameters
// fall back to the environment configuration.
type Scenario struct {
	Name                string  `yaml:"name" validate:"required"`
	Seed                int64   `yaml:"seed" validate:"gte=0"`
	AvgDriveSpeedKmh    float64 `yaml:"avgDriveSpeedKmh" validate:"gte=0"`
	DecisionBufferMin   float64 `yaml:"decisionBufferMin" validate:"gte=0"`
	CorrectionPadMin    float64 `yaml:"correctionPadMin" validate:"gte=0"`
	StationDetourRatio  float64 `yaml:"stationDetourRatio" validate:"gte=0"`
	OnewayRecoveryMeanH float64 `yaml:"onewayRecoveryMeanH" validate:"gte=0"`
	OnewayRecoveryStdH  float64 `yaml:"onewayRecoveryStdH" validate:"gte=0"`
	ShareProbability    float64 `yaml:"shareProbability" validate:"gte=0,lte=1"`
}

type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadScenarios reads and validates a multi-scenario YAML file. Every
// scenario inherits unset parameters from cfg.
func LoadScenarios(path string, cfg *Config) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}
	var file scenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse scenarios: %w", err)
	}
	if len(file.Scenarios) == 0 {
		return nil, fmt.Errorf("scenarios file %q lists no scenarios", path)
	}
	v := validator.New()
	names := make(map[string]struct{}, len(file.Scenarios))
	out := make([]Scenario, 0, len(file.Scenarios))
	for i, sc := range file.Scenarios {
		if err := v.Struct(sc); err != nil {
			return nil, fmt.Errorf("scenario %d (%q): %w", i, sc.Name, err)
		}
		if _, dup := names[sc.Name]; dup {
			return nil, fmt.Errorf("duplicate scenario name %q", sc.Name)
		}
		names[sc.Name] = struct{}{}
		out = append(out, sc.withDefaults(cfg))
	}
	return out, nil
}

// DefaultScenario is the single run described by the environment alone.
func (c *Config) DefaultScenario() Scenario {
	return Scenario{Name: "default"}.withDefaults(c)
}

func (sc Scenario) withDefaults(cfg *Config) Scenario {
	if sc.Seed == 0 {
		sc.Seed = cfg.RandomSeed
	}
	if sc.AvgDriveSpeedKmh == 0 {
		sc.AvgDriveSpeedKmh = cfg.AvgDriveSpeedKmh
	}
	if sc.DecisionBufferMin == 0 {
		sc.DecisionBufferMin = cfg.DecisionBufferMin
	}
	if sc.CorrectionPadMin == 0 {
		sc.CorrectionPadMin = cfg.CorrectionPadMin
	}
	if sc.StationDetourRatio == 0 {
		sc.StationDetourRatio = cfg.StationDetourRatio
	}
	if sc.OnewayRecoveryMeanH == 0 {
		sc.OnewayRecoveryMeanH = cfg.OnewayRecoveryMeanH
	}
	if sc.OnewayRecoveryStdH == 0 {
		sc.OnewayRecoveryStdH = cfg.OnewayRecoveryStdH
	}
	if sc.ShareProbability == 0 {
		sc.ShareProbability = cfg.ShareProbability
	}
	return sc
}
