package tables

import (
	"fmt"

	"github.com/spf13/viper"
)

// fileConfig is the on-disk shape of the engine tuning.
type fileConfig struct {
	BackendWeights  map[string]float64 `mapstructure:"backend_weights"`
	QualityWeight   float64            `mapstructure:"quality_weight"`
	AgreementWeight float64            `mapstructure:"agreement_weight"`
	Keywords        []string           `mapstructure:"keywords"`
	SaturationCells float64            `mapstructure:"saturation_cells"`
}

// LoadFile reads engine tuning from a YAML file:
//
//	backend_weights:
//	  lattice: 1.0
//	  stream: 0.9
//	quality_weight: 0.7
//	agreement_weight: 0.3
//	saturation_cells: 40
//
// Omitted keys keep the package defaults; per-expert backend_weights still
// override these per task.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read tables config: %w", err)
	}
	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return Config{}, fmt.Errorf("unmarshal tables config: %w", err)
	}

	for id, w := range fc.BackendWeights {
		if w <= 0 {
			return Config{}, fmt.Errorf("backend weight for %q must be positive, got %v", id, w)
		}
	}
	if fc.QualityWeight < 0 || fc.AgreementWeight < 0 {
		return Config{}, fmt.Errorf("blend weights must not be negative: quality=%v agreement=%v",
			fc.QualityWeight, fc.AgreementWeight)
	}
	if fc.SaturationCells < 0 {
		return Config{}, fmt.Errorf("saturation_cells must not be negative, got %v", fc.SaturationCells)
	}

	return Config{
		BackendWeights:  fc.BackendWeights,
		QualityWeight:   fc.QualityWeight,
		AgreementWeight: fc.AgreementWeight,
		Keywords:        fc.Keywords,
		SaturationCells: fc.SaturationCells,
	}, nil
}
