// Package config loads dbcheckd's configuration from CLI flags and, if
// given, a YAML config file, following the teacher's
// main/migration_verifier.go pattern: urfave/cli flags wrapped in
// altsrc so any flag can also come from the config file.
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"github.com/urfave/cli/altsrc"
)

const (
	configFileFlag       = "configFile"
	mongoURIFlag         = "mongoURI"
	serverPortFlag       = "serverPort"
	logPathFlag          = "logPath"
	debugFlag            = "debug"
	healthLogDBFlag      = "healthLogDB"
	healthLogCollFlag    = "healthLogCollection"
	oplogCollectionFlag  = "oplogCollection"
	retryDurationMinFlag = "retryDurationMinutes"
)

// Config is dbcheckd's resolved configuration.
type Config struct {
	MongoURI   string
	ServerPort int
	LogPath    string
	Debug      bool

	// HealthLogDB/HealthLogCollection name the capped collection dbCheck
	// records progress and findings to, the analog of the server's
	// local.system.healthlog.
	HealthLogDB         string
	HealthLogCollection string

	// OplogCollection names the collection C5 publishes Collection/Batch
	// records to, standing in for the server's own oplog.
	OplogCollection string

	RetryDuration time.Duration
}

// Flags returns the CLI flag set, wrapped for optional YAML sourcing via
// -configFile, the same altsrc idiom the teacher uses.
func Flags() []cli.Flag {
	return []cli.Flag{
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  configFileFlag,
			Usage: "path to an optional YAML config file",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  mongoURIFlag,
			Value: "mongodb://localhost:27017",
			Usage: "`URI` of the replica set to run dbCheck against",
		}),
		altsrc.NewIntFlag(cli.IntFlag{
			Name:  serverPortFlag,
			Value: 27040,
			Usage: "`port` for the dbCheck command surface",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  logPathFlag,
			Value: "stdout",
			Usage: "`directory` to write dbcheck.log into, or \"stdout\"",
		}),
		altsrc.NewBoolFlag(cli.BoolFlag{
			Name:  debugFlag,
			Usage: "turn on debug logging",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  healthLogDBFlag,
			Value: "local",
			Usage: "`database` holding the health-log collection",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  healthLogCollFlag,
			Value: "system.healthlog",
			Usage: "`collection` name for the health log",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  oplogCollectionFlag,
			Value: "dbcheck.oplog",
			Usage: "`collection` name C5 publishes Collection/Batch records to",
		}),
		altsrc.NewInt64Flag(cli.Int64Flag{
			Name:  retryDurationMinFlag,
			Value: 10,
			Usage: "`minutes` to keep retrying a transient error before giving up",
		}),
	}
}

// Before returns the cli.App.Before hook that loads -configFile, if set,
// as an additional flag source.
func Before(flags []cli.Flag) cli.BeforeFunc {
	return func(cCtx *cli.Context) error {
		confFile := cCtx.String(configFileFlag)
		if confFile == "" {
			return nil
		}

		readConfFunc := altsrc.InitInputSourceWithContext(flags, altsrc.NewYamlSourceFromFlagFunc(configFileFlag))
		return readConfFunc(cCtx)
	}
}

// FromContext resolves a Config from an already-parsed cli.Context.
func FromContext(cCtx *cli.Context) (*Config, error) {
	mongoURI := cCtx.String(mongoURIFlag)
	if mongoURI == "" {
		return nil, errors.Errorf("%s must not be empty", mongoURIFlag)
	}

	return &Config{
		MongoURI:            mongoURI,
		ServerPort:          cCtx.Int(serverPortFlag),
		LogPath:             cCtx.String(logPathFlag),
		Debug:               cCtx.Bool(debugFlag),
		HealthLogDB:         cCtx.String(healthLogDBFlag),
		HealthLogCollection: cCtx.String(healthLogCollFlag),
		OplogCollection:     cCtx.String(oplogCollectionFlag),
		RetryDuration:       time.Duration(cCtx.Int64(retryDurationMinFlag)) * time.Minute,
	}, nil
}
