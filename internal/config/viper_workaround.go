package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type procedureKeysConfig struct {
	DataSources map[string]struct {
		Procedures map[string]Procedure `yaml:"procedures"`
	} `yaml:"datasources"`
}

// restoreProcedureKeys re-reads the procedures maps of the file with yaml.v3.
// Viper lower-cases every map key, but procedure keys are case-sensitive.
func restoreProcedureKeys(path string, cfg *Config) error {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
	default:
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing config file")
		}
	}()

	raw := &procedureKeysConfig{}
	if err := yaml.NewDecoder(f).Decode(raw); err != nil {
		return err
	}
	for name, ds := range raw.DataSources {
		target, ok := cfg.DataSources[strings.ToLower(name)]
		if !ok || target == nil || ds.Procedures == nil {
			continue
		}
		target.Procedures = ds.Procedures
	}
	return nil
}
