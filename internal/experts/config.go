package experts

import (
	"fmt"

	"github.com/spf13/viper"
)

// fileConfig is the on-disk shape of the expert registry.
type fileConfig struct {
	Alpha   float64        `mapstructure:"alpha"`
	Experts []ExpertConfig `mapstructure:"experts"`
}

// LoadFile reads the expert registry from a YAML file:
//
//	alpha: 0.2
//	experts:
//	  - id: rockwool
//	    manufacturer: ROCKWOOL
//	    prompt_template: datasheet
//	    backend_weights: {lattice: 1.0}
//	    initial_weight: 0.8
func LoadFile(path string) ([]ExpertConfig, float64, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, 0, fmt.Errorf("read experts config: %w", err)
	}
	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, 0, fmt.Errorf("unmarshal experts config: %w", err)
	}
	seen := map[string]struct{}{}
	for _, e := range fc.Experts {
		if e.ID == "" {
			return nil, 0, fmt.Errorf("expert with empty id in %s", path)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, 0, fmt.Errorf("duplicate expert id %q in %s", e.ID, path)
		}
		seen[e.ID] = struct{}{}
	}
	return fc.Experts, fc.Alpha, nil
}
