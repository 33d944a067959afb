// Command dbcheckd runs the replica-set consistency auditor as a
// standalone daemon: it exposes the dbCheck command surface over HTTP
// and executes runs against a target replica set, following the
// teacher's main/migration_verifier.go wiring pattern.
package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/10gen/dbcheck/internal/config"
	"github.com/10gen/dbcheck/internal/dbcheck/catalog"
	"github.com/10gen/dbcheck/internal/dbcheck/healthlog"
	"github.com/10gen/dbcheck/internal/dbcheck/job"
	"github.com/10gen/dbcheck/internal/dbcheck/logbridge"
	"github.com/10gen/dbcheck/internal/dbcheck/webserver"
	"github.com/10gen/dbcheck/internal/logger"
	"github.com/10gen/dbcheck/mmongo"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/urfave/cli"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const summaryFlag = "summary"

func main() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := config.Flags()
	flags = append(flags, cli.BoolFlag{
		Name:  summaryFlag,
		Usage: "print a table of the 50 most recent health-log entries and exit",
	})

	app := &cli.App{
		Name:   "dbcheckd",
		Usage:  "audit replica-set consistency with periodic, key-ordered content hashing",
		Flags:  flags,
		Before: config.Before(flags),
		Action: func(cCtx *cli.Context) error {
			cfg, err := config.FromContext(cCtx)
			if err != nil {
				return err
			}

			log := setupLogger(cfg)

			ctx := context.Background()
			client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
			if err != nil {
				return errors.Wrap(err, "connecting to mongo")
			}
			defer client.Disconnect(ctx)

			if cCtx.Bool(summaryFlag) {
				return printSummary(ctx, client, cfg)
			}

			return run(ctx, client, cfg, log)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Stack().Msg("dbcheckd exited with an error.")
	}
}

func setupLogger(cfg *config.Config) *logger.Logger {
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if cfg.LogPath == "" || cfg.LogPath == "stdout" {
		if cfg.Debug {
			return logger.NewDebugLogger()
		}
		return logger.NewDefaultLogger()
	}

	writer, err := logger.NewRotatingWriter(cfg.LogPath)
	if err != nil {
		log.Fatal().Err(err).Str("logPath", cfg.LogPath).Msg("failed to open log file")
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}

	zl := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	return logger.NewLogger(&zl, writer)
}

func run(ctx context.Context, client *mongo.Client, cfg *config.Config, log *logger.Logger) error {
	oracle := catalog.NewMongoLeadershipOracle(client)

	healthLogColl := client.Database(cfg.HealthLogDB).Collection(cfg.HealthLogCollection)
	sink := healthlog.NewMongoSink(healthLogColl, log)

	oplogColl := client.Database(cfg.HealthLogDB).Collection(cfg.OplogCollection)
	writeLog := catalog.NewMongoWriteLog(oplogColl)

	bridge := logbridge.New(writeLog, oracle, cfg.RetryDuration, log)
	fcv := catalog.NewMongoFeatureCompatibility(client)

	// Wiring the bridge's own Stepdown in as the oracle's callback is
	// what makes C5's stepdown-exclusion lock engage on a real election
	// or an operator-issued rs.stepDown(), not only on a run that steps
	// itself down.
	oracle.OnStepdown(bridge.Stepdown)
	go oracle.Watch(ctx, 5*time.Second)

	runner := &multiDBRunner{client: client, bridge: bridge, oracle: oracle, sink: sink, log: log}

	catalogFor := func(dbName string) catalog.Catalog {
		return catalog.NewMongoCatalog(client.Database(dbName))
	}

	server := webserver.New(cfg.ServerPort, catalogFor, fcv, catalog.AlwaysAllowAuthorizer{}, runner, log)
	return server.Run(ctx)
}

// multiDBRunner launches a job.Job scoped to whichever database a Run's
// namespaces name; every CollectionInfo in a given Run shares one
// database, since planner builds one Run per request.
type multiDBRunner struct {
	client *mongo.Client
	bridge *logbridge.Bridge
	oracle catalog.LeadershipOracle
	sink   healthlog.Sink
	log    *logger.Logger
}

func (r *multiDBRunner) Run(ctx context.Context, run catalog.Run) error {
	if len(run) == 0 {
		return nil
	}

	dbName, _ := mmongo.SplitNamespace(run[0].Namespace)
	db := r.client.Database(dbName)
	cat := catalog.NewMongoCatalog(db)

	j := job.New(db, r.bridge, cat, r.oracle, r.sink, r.log)
	return j.Run(ctx, run)
}

func printSummary(ctx context.Context, client *mongo.Client, cfg *config.Config) error {
	coll := client.Database(cfg.HealthLogDB).Collection(cfg.HealthLogCollection)

	cur, err := coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{"timestamp", -1}}).SetLimit(50))
	if err != nil {
		return errors.Wrap(err, "reading health log")
	}
	defer cur.Close(ctx)

	var entries []healthlog.Entry
	if err := cur.All(ctx, &entries); err != nil {
		return errors.Wrap(err, "decoding health log")
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Namespace", "Severity", "NDocs", "NBytes", "MD5", "Message"})
	for _, e := range entries {
		table.Append([]string{
			e.Namespace,
			string(e.Severity),
			strconv.FormatInt(e.NDocs, 10),
			strconv.FormatInt(e.NBytes, 10),
			e.Md5,
			e.Msg,
		})
	}
	table.Render()

	return nil
}
