package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/assetline/cloudhooks/internal/domain"
	"github.com/assetline/cloudhooks/internal/hooks"
	"github.com/assetline/cloudhooks/internal/metrics"
	"github.com/assetline/cloudhooks/internal/models"
)

// AssetHistoryService records lifecycle and status changes of assets in
// their history before the save is committed.
type AssetHistoryService struct {
	store domain.DocumentStore
	log   *logrus.Logger
	now   clock
}

// NewAssetHistoryService creates an AssetHistoryService.
func NewAssetHistoryService(store domain.DocumentStore, log *logrus.Logger) *AssetHistoryService {
	return &AssetHistoryService{store: store, log: log, now: time.Now}
}

// BeforeSave is the beforeSave trigger for Asset. It only mutates the
// in-flight object's history; the platform commit persists it.
func (s *AssetHistoryService) BeforeSave(ctx context.Context, req *hooks.Request) (models.Document, error) {
	if !req.HasIdentity() {
		return nil, hooks.Reject(MsgLoginRequired)
	}

	obj := req.Object.Clone()
	actor := req.User.Actor()

	logger := s.log.WithFields(logrus.Fields{
		"class":     models.ClassAsset,
		"object_id": obj.ObjectID(),
		"actor":     actor.ObjectID,
	})

	tr := hooks.ResolveTransition(ctx, s.store, models.ClassAsset, obj)

	switch tr.Kind {
	case hooks.Update:
		newStatus, carried := obj[models.FieldStatus]
		if !carried || tr.Prior.String(models.FieldStatus) == obj.String(models.FieldStatus) {
			return obj, nil
		}

		history, err := obj.History()
		if err != nil {
			// Leave a history we cannot append to as it is.
			logger.WithError(err).Warn("asset history is not a list, status change not recorded")
			return obj, nil
		}

		status, _ := newStatus.(string)
		s.append(obj, history, models.ActionStatusChange, status, actor)
		logger.WithFields(logrus.Fields{
			"from": tr.Prior.String(models.FieldStatus),
			"to":   status,
		}).Debug("asset status changed")

	case hooks.Orphaned:
		logger.WithError(tr.Err).Warn("previous asset unavailable, recording as created")
		s.append(obj, models.History{}, models.ActionAssetCreated, models.StatusReady, actor)

	default:
		s.append(obj, models.History{}, models.ActionAssetCreated, models.StatusReady, actor)
	}

	return obj, nil
}

func (s *AssetHistoryService) append(obj models.Document, history models.History, action, status string, actor models.HistoryUser) {
	history.Append(models.NewHistoryEntry(action, status, actor, s.now()))
	obj.SetHistory(history)
	metrics.HistoryEntries.WithLabelValues(action).Inc()
}
