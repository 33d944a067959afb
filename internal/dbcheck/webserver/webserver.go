// Package webserver implements the command surface: a small gin server
// exposing POST /dbCheck, which plans a run (internal/dbcheck/planner)
// and launches it (internal/dbcheck/job) as a background goroutine,
// mirroring the teacher's WebServer/RequestAndResponseLogger pattern in
// internal/verifier/web_server.go.
package webserver

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/10gen/dbcheck/dbkey"
	"github.com/10gen/dbcheck/internal/dbcheck/catalog"
	"github.com/10gen/dbcheck/internal/dbcheck/planner"
	"github.com/10gen/dbcheck/internal/logger"
	"github.com/10gen/dbcheck/mmongo"
	"github.com/10gen/dbcheck/option"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// minFCV is the lowest feature compatibility version dbCheck is allowed
// to run under, matching the original command's own eligibility check.
var minFCV = []int{3, 6}

// Runner executes a planned run to completion. The Server calls it on a
// background goroutine, so the request that planned the run returns
// without waiting for it. *job.Job satisfies this interface, but
// webserver depends only on the shape, not the package, so a caller is
// free to substitute a fake in tests.
type Runner interface {
	Run(ctx context.Context, run catalog.Run) error
}

// CatalogFactory returns the Catalog for a named database. A request's
// target database is only known once its body is parsed, so the Server
// resolves a Catalog per request rather than holding a single fixed one.
type CatalogFactory func(dbName string) catalog.Catalog

// Server is the dbCheck HTTP command surface.
type Server struct {
	port    int
	logger  *logger.Logger
	catalog CatalogFactory
	fcv     catalog.FeatureCompatibility
	authz   catalog.Authorizer
	runner  Runner

	srv *http.Server
}

// New returns a Server that plans runs against the database catalogFor
// resolves, gates them on fcv and authz, and hands accepted runs to
// runner.
func New(
	port int,
	catalogFor CatalogFactory,
	fcv catalog.FeatureCompatibility,
	authz catalog.Authorizer,
	runner Runner,
	log *logger.Logger,
) *Server {
	return &Server{
		port:    port,
		logger:  log,
		catalog: catalogFor,
		fcv:     fcv,
		authz:   authz,
		runner:  runner,
	}
}

// dbCheckRequest is the POST /dbCheck request body, modeled on the
// original command's document shape: `db` names the target database,
// `collection` (if set) restricts the check to a single collection
// within it, and the remaining fields are the same bounds the original
// command accepts.
type dbCheckRequest struct {
	DB         string `json:"db" binding:"required"`
	Collection string `json:"collection"`

	MinKey            any    `json:"minKey"`
	MaxKey            any    `json:"maxKey"`
	MaxCount          *int64 `json:"maxCount"`
	MaxSize           *int64 `json:"maxSize"`
	MaxCountPerSecond *int64 `json:"maxCountPerSecond"`
}

type dbCheckResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"err,omitempty"`
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(s.requestLogger(), gin.Recovery())

	router.POST("/dbCheck", s.handleDbCheck)

	s.srv = &http.Server{
		Addr:    "0.0.0.0:" + strconv.Itoa(s.port),
		Handler: router,
	}

	srvCtx, cancel := context.WithCancel(ctx)

	s.logger.Info().Int("port", s.port).Msg("Running dbCheck webserver.")

	go func() {
		err := s.srv.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("dbCheck webserver failed.")
		}
		cancel()
	}()

	<-srvCtx.Done()
	return s.srv.Shutdown(context.Background())
}

type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w responseBodyWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// requestLogger logs each request/response pair with a correlating
// trace ID, the same shape as the teacher's RequestAndResponseLogger.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		traceID := uuid.New().String()

		var buf []byte
		if c.Request.Body != nil {
			buf, _ = io.ReadAll(c.Request.Body)
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(buf))

		s.logger.Info().
			Str("uri", c.Request.RequestURI).
			Str("method", c.Request.Method).
			Str("clientIP", c.ClientIP()).
			Str("traceID", traceID).
			Msg("received request")

		rbw := &responseBodyWriter{ResponseWriter: c.Writer, body: bytes.NewBufferString("")}
		c.Writer = rbw

		c.Next()

		s.logger.Info().
			Int("status", c.Writer.Status()).
			Str("traceID", traceID).
			Str("latency", time.Since(start).String()).
			Msg("sent response")
	}
}

func (s *Server) handleDbCheck(c *gin.Context) {
	var req dbCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dbCheckResponse{OK: false, Error: err.Error()})
		return
	}

	ctx := c.Request.Context()

	version, err := s.fcv.Version(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dbCheckResponse{OK: false, Error: err.Error()})
		return
	}
	if !mmongo.VersionAtLeast(version, minFCV[0], minFCV[1]) {
		c.JSON(http.StatusBadRequest, dbCheckResponse{
			OK:    false,
			Error: "dbCheck requires featureCompatibilityVersion 3.6 or later",
		})
		return
	}

	namespace := req.DB
	if req.Collection != "" {
		namespace = req.DB + "." + req.Collection
	}

	if err := s.authz.CheckReadPrivilege(ctx, namespace); err != nil {
		c.JSON(http.StatusForbidden, dbCheckResponse{OK: false, Error: err.Error()})
		return
	}

	pReq, err := toPlannerRequest(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, dbCheckResponse{OK: false, Error: err.Error()})
		return
	}

	cat := s.catalog(req.DB)

	var run catalog.Run
	if req.Collection != "" {
		run, err = planner.PlanSingle(ctx, cat, pReq)
	} else {
		run, err = planner.PlanAll(ctx, cat, pReq)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, dbCheckResponse{OK: false, Error: err.Error()})
		return
	}

	// The run gets its own background context, deliberately not derived
	// from the request context: closing the HTTP connection must not
	// cancel a check already under way.
	go func() {
		if err := s.runner.Run(context.Background(), run); err != nil {
			s.logger.Error().Err(err).Str("namespace", namespace).Msg("dbCheck run exited with an error.")
		}
	}()

	c.JSON(http.StatusAccepted, dbCheckResponse{OK: true})
}

func toPlannerRequest(req dbCheckRequest) (planner.Request, error) {
	pReq := planner.Request{
		Database: req.DB,
	}
	if req.Collection != "" {
		pReq.Namespace = req.DB + "." + req.Collection
	}

	if req.MinKey != nil {
		key, err := toKey(req.MinKey)
		if err != nil {
			return planner.Request{}, errors.Wrap(err, "parsing minKey")
		}
		pReq.MinKey = option.Some(key)
	}
	if req.MaxKey != nil {
		key, err := toKey(req.MaxKey)
		if err != nil {
			return planner.Request{}, errors.Wrap(err, "parsing maxKey")
		}
		pReq.MaxKey = option.Some(key)
	}
	if req.MaxCount != nil {
		pReq.MaxCount = option.Some(*req.MaxCount)
	}
	if req.MaxSize != nil {
		pReq.MaxSize = option.Some(*req.MaxSize)
	}
	if req.MaxCountPerSecond != nil {
		pReq.MaxCountPerSecond = option.Some(*req.MaxCountPerSecond)
	}

	return pReq, nil
}

// toKey converts a JSON-decoded scalar (float64, string, bool, or a
// nested map/slice for a JSON object/array key) into a dbkey.Key by
// round-tripping it through BSON's own value marshaling. This covers
// the common cases (numeric and string shard/index keys); it does not
// understand MongoDB extended JSON forms like {"$oid": "..."}.
func toKey(v any) (dbkey.Key, error) {
	t, data, err := bson.MarshalValue(v)
	if err != nil {
		return dbkey.Key{}, err
	}
	return dbkey.FromRawValue(bson.RawValue{Type: t, Value: data}), nil
}
