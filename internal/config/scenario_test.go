package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeScenarios(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write scenarios file: %v", err)
	}
	return path
}

func baseConfig() *Config {
	return &Config{
		RandomSeed:          99,
		AvgDriveSpeedKmh:    50,
		DecisionBufferMin:   10,
		CorrectionPadMin:    2,
		StationDetourRatio:  0.5,
		OnewayRecoveryMeanH: 1.7,
		OnewayRecoveryStdH:  0.7,
		ShareProbability:    0.1,
	}
}

func TestLoadScenariosInheritsDefaults(t *testing.T) {
	path := writeScenarios(t, `
scenarios:
  - name: baseline
  - name: dense-fleet
    seed: 7
    shareProbability: 0.4
    stationDetourRatio: 0.8
`)
	scs, err := LoadScenarios(path, baseConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scs) != 2 {
		t.Fatalf("got %d scenarios, want 2", len(scs))
	}
	if scs[0].Seed != 99 || scs[0].ShareProbability != 0.1 || scs[0].AvgDriveSpeedKmh != 50 {
		t.Errorf("baseline did not inherit defaults: %+v", scs[0])
	}
	if scs[1].Seed != 7 || scs[1].ShareProbability != 0.4 || scs[1].StationDetourRatio != 0.8 {
		t.Errorf("overrides lost: %+v", scs[1])
	}
	if scs[1].DecisionBufferMin != 10 {
		t.Errorf("unset field not inherited: %+v", scs[1])
	}
}

func TestLoadScenariosRejectsMissingName(t *testing.T) {
	path := writeScenarios(t, `
scenarios:
  - seed: 7
`)
	if _, err := LoadScenarios(path, baseConfig()); err == nil {
		t.Fatal("expected error for scenario without a name")
	}
}

func TestLoadScenariosRejectsDuplicateNames(t *testing.T) {
	path := writeScenarios(t, `
scenarios:
  - name: baseline
  - name: baseline
`)
	if _, err := LoadScenarios(path, baseConfig()); err == nil {
		t.Fatal("expected error for duplicate scenario names")
	}
}

func TestLoadScenariosRejectsOutOfRangeProbability(t *testing.T) {
	path := writeScenarios(t, `
scenarios:
  - name: baseline
    shareProbability: 1.5
`)
	if _, err := LoadScenarios(path, baseConfig()); err == nil {
		t.Fatal("expected error for share probability above 1")
	}
}

func TestLoadScenariosRejectsEmptyFile(t *testing.T) {
	path := writeScenarios(t, "scenarios: []\n")
	if _, err := LoadScenarios(path, baseConfig()); err == nil {
		t.Fatal("expected error for empty scenario list")
	}
}

func TestDefaultScenario(t *testing.T) {
	sc := baseConfig().DefaultScenario()
	if sc.Name != "default" {
		t.Errorf("name = %q, want default", sc.Name)
	}
	if sc.Seed != 99 || sc.ShareProbability != 0.1 {
		t.Errorf("defaults not applied: %+v", sc)
	}
}
