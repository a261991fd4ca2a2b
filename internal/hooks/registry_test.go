package hooks_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetline/cloudhooks/internal/hooks"
	"github.com/assetline/cloudhooks/internal/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func TestRunFunction_Success(t *testing.T) {
	r := hooks.NewRegistry(testLogger())
	r.Define("hello", func(context.Context, *hooks.Request) (any, error) {
		return "Hello world!", nil
	})

	resp := r.RunFunction(context.Background(), "hello", &hooks.Request{})
	assert.Equal(t, "Hello world!", resp.Success)
	assert.Nil(t, resp.Error)

	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":"Hello world!"}`, string(b))
}

func TestRunFunction_NullSuccessKeepsKey(t *testing.T) {
	r := hooks.NewRegistry(testLogger())
	r.Define("nothing", func(context.Context, *hooks.Request) (any, error) { return nil, nil })

	b, err := json.Marshal(r.RunFunction(context.Background(), "nothing", &hooks.Request{}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":null}`, string(b))
}

func TestRunFunction_ErrorPayloads(t *testing.T) {
	r := hooks.NewRegistry(testLogger())
	r.Define("typed", func(context.Context, *hooks.Request) (any, error) {
		return nil, hooks.FailWith(map[string]string{"detail": "User not found:gone"}, errors.New("404"))
	})
	r.Define("untyped", func(context.Context, *hooks.Request) (any, error) {
		return nil, errors.New("connection reset by peer")
	})

	resp := r.RunFunction(context.Background(), "typed", &hooks.Request{})
	assert.Equal(t, map[string]string{"detail": "User not found:gone"}, resp.Error)

	resp = r.RunFunction(context.Background(), "untyped", &hooks.Request{})
	assert.Equal(t, hooks.InternalErrorMessage, resp.Error)
}

func TestRunFunction_Unknown(t *testing.T) {
	r := hooks.NewRegistry(testLogger())

	resp := r.RunFunction(context.Background(), "missing", &hooks.Request{})
	assert.Equal(t, `Invalid function: "missing"`, resp.Error)
	assert.False(t, r.HasFunction("missing"))
}

func TestRunFunction_PanicBecomesError(t *testing.T) {
	r := hooks.NewRegistry(testLogger())
	r.Define("boom", func(context.Context, *hooks.Request) (any, error) {
		panic("nil map write")
	})

	resp := r.RunFunction(context.Background(), "boom", &hooks.Request{})
	assert.Nil(t, resp.Success)
	assert.Equal(t, hooks.InternalErrorMessage, resp.Error)
}

func TestRunTrigger(t *testing.T) {
	r := hooks.NewRegistry(testLogger())
	r.BeforeSave(models.ClassAsset, func(_ context.Context, req *hooks.Request) (models.Document, error) {
		if !req.HasIdentity() {
			return nil, hooks.Reject("not allowed")
		}
		obj := req.Object.Clone()
		obj["touched"] = true
		return obj, nil
	})

	assert.True(t, r.HasTrigger(models.ClassAsset, hooks.TriggerBeforeSave))
	assert.Equal(t, []string{"Asset/beforeSave"}, r.Triggers())

	resp := r.RunTrigger(context.Background(), models.ClassAsset, hooks.TriggerBeforeSave, &hooks.Request{
		Master: true,
		Object: models.Document{"status": "READY"},
	})
	require.Nil(t, resp.Error)
	assert.Equal(t, models.Document{"status": "READY", "touched": true}, resp.Success)

	resp = r.RunTrigger(context.Background(), models.ClassAsset, hooks.TriggerBeforeSave, &hooks.Request{})
	assert.Equal(t, "not allowed", resp.Error)

	resp = r.RunTrigger(context.Background(), "Other", hooks.TriggerBeforeSave, &hooks.Request{})
	assert.NotNil(t, resp.Error)
}

func TestDefine_DuplicatePanics(t *testing.T) {
	r := hooks.NewRegistry(testLogger())
	h := func(context.Context, *hooks.Request) (any, error) { return nil, nil }
	r.Define("a", h)
	r.Define("b", h)

	assert.Panics(t, func() { r.Define("a", h) })
	assert.Equal(t, []string{"a", "b"}, r.Functions())
}

func TestRequest_DecodeWebhookPayload(t *testing.T) {
	raw := `{
		"master": false,
		"user": {"objectId": "u1", "username": "jdoe", "sessionToken": "r:abc"},
		"params": {"movie": "Alien"},
		"object": {"objectId": "a1", "status": "LOST"},
		"original": {"objectId": "a1", "status": "READY"},
		"triggerName": "beforeSave",
		"installationId": "inst-1"
	}`

	var req hooks.Request
	require.NoError(t, json.Unmarshal([]byte(raw), &req))

	assert.True(t, req.HasIdentity())
	assert.Equal(t, models.Session("r:abc"), req.Auth())
	assert.Equal(t, "LOST", req.Object.String("status"))
	assert.Equal(t, "READY", req.Original.String("status"))

	var params struct {
		Movie string `json:"movie"`
	}
	require.NoError(t, req.DecodeParams(&params))
	assert.Equal(t, "Alien", params.Movie)

	empty := hooks.Request{}
	assert.NoError(t, empty.DecodeParams(&params))
	assert.False(t, empty.HasIdentity())
}

func TestRunFunction_LogsOutcome(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	r := hooks.NewRegistry(log)
	r.Define("broken", func(context.Context, *hooks.Request) (any, error) {
		return nil, errors.New("connection reset by peer")
	})

	r.RunFunction(context.Background(), "broken", &hooks.Request{})

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "hook failed", entry.Message)
	assert.Equal(t, "broken", entry.Data["hook"])
}
