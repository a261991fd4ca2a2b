// Package service implements the hook handlers: the asset history recorder,
// the assignment cascade, and the callable functions.
package service

import (
	"time"

	"github.com/assetline/cloudhooks/internal/hooks"
	"github.com/assetline/cloudhooks/internal/mail"
	"github.com/assetline/cloudhooks/internal/models"
)

// Messages returned to callers.
const (
	MsgLoginRequired  = "login required"
	MsgMasterRequired = "master key required"
)

// Function names.
const (
	FnHello                 = "hello"
	FnAverageStars          = "averageStars"
	FnSessionForUser        = "sessionForUser"
	FnRotateSessionForUser  = "rotateSessionForUser"
	FnFileContents          = "fileContents"
	FnSendFeedback          = "sendFeedback"
	FnSendExceptionReminder = "sendExceptionReminder"
)

// MailQueue accepts messages for asynchronous delivery.
type MailQueue interface {
	Enqueue(job *mail.Job) bool
}

// clock returns the server time used to stamp history entries.
type clock func() time.Time

// Register wires every hook handler into reg.
func Register(reg *hooks.Registry, assets *AssetHistoryService, assignments *AssignmentService, fns *Functions) {
	reg.BeforeSave(models.ClassAsset, assets.BeforeSave)
	reg.BeforeSave(models.ClassCategoryAssignment, assignments.BeforeSave)

	reg.Define(FnHello, fns.Hello)
	reg.Define(FnAverageStars, fns.AverageStars)
	reg.Define(FnSessionForUser, fns.SessionForUser)
	reg.Define(FnRotateSessionForUser, fns.RotateSessionForUser)
	reg.Define(FnFileContents, fns.FileContents)
	reg.Define(FnSendFeedback, fns.SendFeedback)
	reg.Define(FnSendExceptionReminder, fns.SendExceptionReminder)
}
