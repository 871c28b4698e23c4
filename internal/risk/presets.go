package risk

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"papertrader/internal/sim"
	"papertrader/pkg/db"
)

// Preset is a named risk-settings bundle users can start from.
type Preset struct {
	Name             string `yaml:"name"`
	sim.RiskSettings `yaml:",inline"`
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// LoadPresets reads named presets from a YAML file.
func LoadPresets(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	for _, p := range file.Presets {
		if p.Name == "" {
			return nil, fmt.Errorf("preset without a name")
		}
		if err := p.RiskSettings.Validate(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", p.Name, err)
		}
	}
	return file.Presets, nil
}

// SyncPresetsToDB upserts presets into the database so the API can
// serve them without re-reading the file.
func SyncPresetsToDB(ctx context.Context, database *db.Database, presets []Preset) error {
	rows := make([]db.RiskPresetRow, len(presets))
	for i, p := range presets {
		rows[i] = db.RiskPresetRow{
			Name:               p.Name,
			MaxPositionSizePct: p.MaxPositionSizePct,
			StopLossPct:        p.StopLossPct,
			TakeProfitPct:      p.TakeProfitPct,
			MaxDailyLossPct:    p.MaxDailyLossPct,
			FeePct:             p.FeePct,
			SlippagePct:        p.SlippagePct,
		}
	}
	return database.UpsertRiskPresets(ctx, rows)
}
