package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/assetline/cloudhooks/internal/cache"
	"github.com/assetline/cloudhooks/internal/domain"
	"github.com/assetline/cloudhooks/internal/hooks"
	"github.com/assetline/cloudhooks/internal/metrics"
	"github.com/assetline/cloudhooks/internal/models"
)

// AppendMode selects how the cascade writes to the asset history.
type AppendMode string

const (
	// AppendAtomic adds the entry with a server-side array append.
	AppendAtomic AppendMode = "atomic"
	// AppendRewrite reads the history, appends locally and writes the whole
	// array back. Concurrent cascades on one asset can lose entries.
	AppendRewrite AppendMode = "rewrite"
)

// Cascade outcomes, used as metric labels.
const (
	cascadeSkipped       = "skipped"
	cascadeUnchanged     = "unchanged"
	cascadeAssetMissing  = "asset_missing"
	cascadePersistFailed = "persist_failed"
	cascadeAppended      = "appended"
)

// nameLookupTimeout bounds a shared assignee lookup, which outlives the
// request that started it.
const nameLookupTimeout = 10 * time.Second

// assignedToPrefix precedes the new assignee's full name in the entry status.
const assignedToPrefix = "Assigned To changed to "

// AssignmentService propagates assignee changes of category assignments into
// the history of the asset they belong to.
type AssignmentService struct {
	store   domain.DocumentStore
	names   domain.NameCache
	mode    AppendMode
	log     *logrus.Logger
	now     clock
	lookups singleflight.Group
}

// NewAssignmentService creates an AssignmentService. A nil names cache disables caching.
func NewAssignmentService(store domain.DocumentStore, names domain.NameCache, mode AppendMode, log *logrus.Logger) *AssignmentService {
	if names == nil {
		names = cache.Nop{}
	}
	if mode == "" {
		mode = AppendAtomic
	}

	return &AssignmentService{store: store, names: names, mode: mode, log: log, now: time.Now}
}

// BeforeSave is the beforeSave trigger for CategoryAssignment. After the
// identity check it always allows the save; cascade failures are only logged.
func (s *AssignmentService) BeforeSave(ctx context.Context, req *hooks.Request) (models.Document, error) {
	if req.User == nil {
		return nil, hooks.Reject(MsgLoginRequired)
	}

	obj := req.Object

	logger := s.log.WithFields(logrus.Fields{
		"class":     models.ClassCategoryAssignment,
		"object_id": obj.ObjectID(),
		"actor":     req.User.ObjectID,
	})

	tr := hooks.ResolveTransition(ctx, s.store, models.ClassCategoryAssignment, obj)

	switch tr.Kind {
	case hooks.Create:
		metrics.CascadeOutcomes.WithLabelValues(cascadeSkipped).Inc()
		return obj, nil
	case hooks.Orphaned:
		logger.WithError(tr.Err).Warn("previous assignment unavailable, skipping history")
		metrics.CascadeOutcomes.WithLabelValues(cascadeSkipped).Inc()
		return obj, nil
	}

	next, ok := obj.Pointer(models.FieldAssignedTo)
	if !ok {
		metrics.CascadeOutcomes.WithLabelValues(cascadeUnchanged).Inc()
		return obj, nil
	}

	if prev, had := tr.Prior.Pointer(models.FieldAssignedTo); had && prev.ObjectID == next.ObjectID {
		metrics.CascadeOutcomes.WithLabelValues(cascadeUnchanged).Inc()
		return obj, nil
	}

	result := s.cascade(ctx, logger, obj, next.ObjectID, req.User.Actor())
	metrics.CascadeOutcomes.WithLabelValues(result).Inc()

	return obj, nil
}

// cascade appends an "Assigned To change" entry to the referenced asset.
func (s *AssignmentService) cascade(
	ctx context.Context, logger *logrus.Entry, obj models.Document, assigneeID string, actor models.HistoryUser,
) string {
	ref, ok := obj.Pointer(models.FieldMasterAssetID)
	if !ok {
		logger.Warn("assignment has no asset reference, skipping history")
		return cascadeAssetMissing
	}

	logger = logger.WithFields(logrus.Fields{"asset_id": ref.ObjectID, "assignee": assigneeID})

	q := models.NewQuery(models.ClassAsset).EqualTo(models.KeyObjectID, ref.ObjectID)
	asset, err := s.store.First(ctx, models.MasterKey(), q)
	if err != nil {
		logger.WithError(err).Warn("asset lookup failed, skipping history")
		return cascadeAssetMissing
	}

	entry := models.NewHistoryEntry(models.ActionAssignedToChange, s.assigneeStatus(ctx, assigneeID), actor, s.now())

	if err := s.appendHistory(ctx, asset, entry); err != nil {
		logger.WithError(err).Warn("failed to persist asset history, assignment saved anyway")
		return cascadePersistFailed
	}

	metrics.HistoryEntries.WithLabelValues(entry.Action).Inc()
	logger.WithField("status", entry.Status).Info("assignment change recorded in asset history")

	return cascadeAppended
}

// assigneeStatus resolves the new assignee's full name, or the placeholder
// when the user or their profile cannot be loaded.
func (s *AssignmentService) assigneeStatus(ctx context.Context, userID string) string {
	if name, ok := s.names.Get(ctx, userID); ok {
		return assignedToPrefix + name
	}

	// Concurrent cascades naming the same assignee share one lookup, so it
	// must not be cut short when the request that started it goes away.
	v, _, _ := s.lookups.Do(userID, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), nameLookupTimeout)
		defer cancel()

		return s.resolveName(lookupCtx, s.log.WithField("assignee", userID), userID), nil
	})

	name, _ := v.(string)
	if name == "" {
		return models.AssigneeNameUnavailable
	}

	return assignedToPrefix + name
}

// resolveName loads the user with its profile and caches the full name.
// It returns "" when the name is unavailable.
func (s *AssignmentService) resolveName(ctx context.Context, logger *logrus.Entry, userID string) string {
	q := models.NewQuery(models.ClassUser).
		EqualTo(models.KeyObjectID, userID).
		Includes(models.FieldProfile)

	doc, err := s.store.First(ctx, models.MasterKey(), q)
	if err != nil {
		logger.WithError(err).Warn("assignee lookup failed")
		return ""
	}

	user, err := models.UserFromDocument(doc)
	if err != nil {
		logger.WithError(err).Warn("assignee record could not be decoded")
		return ""
	}

	name, ok := user.FullName()
	if !ok {
		logger.Warn("assignee has no profile name")
		return ""
	}

	s.names.Set(ctx, userID, name)

	return name
}

func (s *AssignmentService) appendHistory(ctx context.Context, asset models.Document, entry models.HistoryEntry) error {
	if s.mode == AppendAtomic {
		return s.store.Append(ctx, models.MasterKey(), models.ClassAsset, asset.ObjectID(), models.FieldHistory, entry)
	}

	history, err := asset.History()
	if err != nil {
		return fmt.Errorf("asset %s: %w", asset.ObjectID(), err)
	}
	history.Append(entry)

	return s.store.Save(ctx, models.MasterKey(), models.ClassAsset, asset.ObjectID(), models.Document{
		models.FieldHistory: history,
	})
}
