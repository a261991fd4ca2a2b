package service

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/assetline/cloudhooks/internal/files"
	"github.com/assetline/cloudhooks/internal/hooks"
	"github.com/assetline/cloudhooks/internal/models"
)

// File function messages.
const (
	MsgFileNotFound    = "file not found"
	MsgFileFetchFailed = "file fetch failed"
	MsgURLNotAllowed   = "url not allowed"
	MsgFileNotText     = "file is not text"
)

type fileParams struct {
	ClassName string `json:"className"`
	ObjectID  string `json:"objectId"`
	Field     string `json:"field"`
	URL       string `json:"url"`
}

// FileContents returns the text of a stored file, addressed either by the
// record and field holding it or by a direct URL on an allowed host.
func (f *Functions) FileContents(ctx context.Context, req *hooks.Request) (any, error) {
	if !req.HasIdentity() {
		return nil, hooks.Fail(MsgLoginRequired)
	}

	var p fileParams
	if err := req.DecodeParams(&p); err != nil {
		return nil, hooks.FailWith("invalid params", err)
	}

	target, err := f.fileURL(ctx, req, p)
	if err != nil {
		return nil, err
	}

	body, err := f.files.Fetch(ctx, target)
	if errors.Is(err, files.ErrNotAvailable) {
		return nil, hooks.FailWith(MsgFileNotFound, err)
	}
	if err != nil {
		return nil, hooks.FailWith(MsgFileFetchFailed, err)
	}

	if !utf8.Valid(body) {
		return nil, hooks.Fail(MsgFileNotText)
	}

	return string(body), nil
}

func (f *Functions) fileURL(ctx context.Context, req *hooks.Request, p fileParams) (string, error) {
	if p.URL != "" {
		if !f.files.Allowed(p.URL) {
			return "", hooks.Fail(MsgURLNotAllowed)
		}
		return p.URL, nil
	}

	if p.ClassName == "" || p.ObjectID == "" || p.Field == "" {
		return "", hooks.Fail("className, objectId and field are required")
	}

	auth := req.Auth()
	if req.Master {
		auth = models.MasterKey()
	}

	doc, err := f.store.Get(ctx, auth, p.ClassName, p.ObjectID)
	if errors.Is(err, models.ErrNotFound) {
		return "", hooks.FailWith(MsgFileNotFound, err)
	}
	if err != nil {
		return "", hooks.FailWith(MsgFileFetchFailed, err)
	}

	file, ok := doc.File(p.Field)
	if !ok {
		return "", hooks.Fail(MsgFileNotFound)
	}

	return file.URL, nil
}
