// Package planner implements C3, the run planner: it turns a dbCheck
// invocation (a single collection or a whole database) into a Run, the
// ordered list of collections and per-collection bounds a worker will
// process, filtering out namespaces the original command refuses to
// check.
package planner

import (
	"context"
	"math"
	"strings"

	"github.com/10gen/dbcheck/dbkey"
	"github.com/10gen/dbcheck/internal/dbcheck/catalog"
	"github.com/10gen/dbcheck/mmongo"
	"github.com/10gen/dbcheck/option"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
)

// systemCollectionWhitelist lists the system.* collections dbCheck is
// still allowed to run on, ported from the original's canRunDbCheckOn.
var systemCollectionWhitelist = mapset.NewSet(
	"system.backup_users",
	"system.js",
	"system.new_users",
	"system.roles",
	"system.users",
	"system.version",
	"system.views",
)

// Request describes a single dbCheck invocation's parameters, the Go
// counterpart of the command surface's request body (see
// SPEC_FULL.md §6).
type Request struct {
	Namespace         string // empty means "whole database"
	Database          string
	MinKey            option.Option[dbkey.Key]
	MaxKey            option.Option[dbkey.Key]
	MaxCount          option.Option[int64]
	MaxSize           option.Option[int64]
	MaxCountPerSecond option.Option[int64]
}

// ErrIneligibleNamespace indicates the requested namespace can't be
// dbChecked at all (e.g. it's in the local database).
var ErrIneligibleNamespace = errors.New("namespace is not eligible for dbCheck")

// Eligible reports whether namespace can be dbChecked: not in the local
// database, and if it's a system.* collection, on the whitelist.
func Eligible(namespace string) bool {
	db, coll := mmongo.SplitNamespace(namespace)
	if db == "local" {
		return false
	}

	if strings.HasPrefix(coll, "system.") {
		return systemCollectionWhitelist.Contains(coll)
	}

	return true
}

// PlanSingle builds a Run for a single named collection.
func PlanSingle(ctx context.Context, cat catalog.Catalog, req Request) (catalog.Run, error) {
	if !Eligible(req.Namespace) {
		return nil, errors.Wrapf(ErrIneligibleNamespace, "%s", req.Namespace)
	}

	if _, err := cat.CollectionMetadata(ctx, req.Namespace); err != nil {
		return nil, errors.Wrapf(err, "looking up %s", req.Namespace)
	}

	info, err := buildCollectionInfo(req.Namespace, req)
	if err != nil {
		return nil, err
	}

	return catalog.Run{info}, nil
}

// PlanAll builds a Run covering every eligible collection in the
// database, in the catalog's own order, since the original's
// full-database run walks collections via their prev/next UUID chain,
// which reflects catalog order.
func PlanAll(ctx context.Context, cat catalog.Catalog, req Request) (catalog.Run, error) {
	if req.Database == "local" {
		return nil, errors.Wrapf(ErrIneligibleNamespace, "%s", req.Database)
	}

	metas, err := cat.ListCollections(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "listing collections in %s", req.Database)
	}

	var run catalog.Run
	for _, meta := range metas {
		if !Eligible(meta.Namespace) {
			continue
		}

		info, err := buildCollectionInfo(meta.Namespace, req)
		if err != nil {
			return nil, err
		}

		run = append(run, info)
	}

	return run, nil
}

func buildCollectionInfo(namespace string, req Request) (catalog.CollectionInfo, error) {
	startKey := req.MinKey.OrElse(dbkey.Min())
	endKey := req.MaxKey.OrElse(dbkey.Max())

	if dbkey.Compare(startKey, endKey) > 0 {
		return catalog.CollectionInfo{}, errors.Errorf(
			"%s: minKey must not exceed maxKey", namespace)
	}

	return catalog.CollectionInfo{
		Namespace:         namespace,
		StartKey:          startKey,
		EndKey:            endKey,
		MaxDocs:           req.MaxCount.OrElse(math.MaxInt64),
		MaxBytes:          req.MaxSize.OrElse(math.MaxInt64),
		MaxCountPerSecond: req.MaxCountPerSecond,
	}, nil
}
