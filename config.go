package spbind

import (
	"github.com/pkg/errors"

	"github.com/ignaciocaff/spbind/internal/config"
	"github.com/ignaciocaff/spbind/internal/datasource"
	"github.com/ignaciocaff/spbind/internal/logging"
)

// Service is an Executor bound to the datasources of a configuration file.
type Service struct {
	*Executor
	registry *datasource.Registry
}

// Configure loads the configuration file at path, opens one connection pool per
// datasource and returns a Service executing the configured procedure keys.
// The logger described by the file's log section is used unless opts carry
// WithLogger. Close releases the pools.
func Configure(path string, opts ...Option) (*Service, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log configuration")
	}
	registry, err := datasource.Open(cfg)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithLogger(logger)}, opts...)
	return &Service{Executor: New(registry, opts...), registry: registry}, nil
}

func (s *Service) Close() error {
	return s.registry.Close()
}
