package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/urfave/cli"
)

type ConfigSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) runApp(args []string) (*Config, error) {
	var got *Config
	flags := Flags()

	app := &cli.App{
		Name:   "dbcheckd",
		Flags:  flags,
		Before: Before(flags),
		Action: func(cCtx *cli.Context) error {
			cfg, err := FromContext(cCtx)
			if err != nil {
				return err
			}
			got = cfg
			return nil
		},
	}

	err := app.Run(append([]string{"dbcheckd"}, args...))
	return got, err
}

func (s *ConfigSuite) TestDefaults() {
	cfg, err := s.runApp(nil)
	s.Require().NoError(err)

	s.Equal("mongodb://localhost:27017", cfg.MongoURI)
	s.Equal(27040, cfg.ServerPort)
	s.Equal("local", cfg.HealthLogDB)
	s.Equal("system.healthlog", cfg.HealthLogCollection)
	s.Equal(10*time.Minute, cfg.RetryDuration)
	s.False(cfg.Debug)
}

func (s *ConfigSuite) TestFlagsOverrideDefaults() {
	cfg, err := s.runApp([]string{
		"-mongoURI", "mongodb://example:27017",
		"-serverPort", "9999",
		"-debug",
	})
	s.Require().NoError(err)

	s.Equal("mongodb://example:27017", cfg.MongoURI)
	s.Equal(9999, cfg.ServerPort)
	s.True(cfg.Debug)
}

func (s *ConfigSuite) TestRejectsEmptyMongoURI() {
	_, err := s.runApp([]string{"-mongoURI", ""})
	s.Error(err)
}
