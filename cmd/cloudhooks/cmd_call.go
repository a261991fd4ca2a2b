package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/assetline/cloudhooks/internal/hooks"
	"github.com/assetline/cloudhooks/internal/middleware"
	"github.com/assetline/cloudhooks/internal/models"
)

const (
	defaultServerURL   = "http://127.0.0.1:3040"
	defaultCallTimeout = 30 * time.Second
)

type callOptions struct {
	serverURL    string
	key          string
	params       string
	paramsFile   string
	master       bool
	userID       string
	sessionToken string
	timeout      time.Duration
}

func newCallCmd() *cobra.Command {
	var opts callOptions

	cmd := &cobra.Command{
		Use:   "call <function>",
		Short: "Invoke a function on a running webhook server",
		Long: "Send a function webhook to a running server, the way the platform does,\n" +
			"and print the response envelope.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			opts.resolve()

			resp, err := callFunction(cmd.Context(), &opts, args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("encode response: %w", err)
			}

			if _, failed := resp["error"]; failed {
				return fmt.Errorf("function %s returned an error", args[0])
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.serverURL, "url", "", "Webhook server URL (env: CLOUDHOOKS_URL)")
	f.StringVar(&opts.key, "key", "", "Webhook key (env: WEBHOOK_KEY)")
	f.StringVar(&opts.params, "params", "", "Function params as a JSON object")
	f.StringVar(&opts.paramsFile, "params-file", "", "Read params from a YAML or JSON file")
	f.BoolVar(&opts.master, "master", false, "Call with master privilege")
	f.StringVar(&opts.userID, "user", "", "Object id of the acting user")
	f.StringVar(&opts.sessionToken, "session", "", "Session token of the acting user")
	f.DurationVar(&opts.timeout, "timeout", defaultCallTimeout, "Request timeout")

	return cmd
}

// resolve fills unset flags from the environment.
func (o *callOptions) resolve() {
	if o.serverURL == "" {
		o.serverURL = os.Getenv("CLOUDHOOKS_URL")
	}
	if o.serverURL == "" {
		o.serverURL = defaultServerURL
	}
	if o.key == "" {
		o.key = os.Getenv("WEBHOOK_KEY")
	}
}

// loadParams decodes --params or --params-file. YAML is a superset of JSON,
// so both file formats go through the YAML decoder.
func (o *callOptions) loadParams() (map[string]any, error) {
	if o.params != "" && o.paramsFile != "" {
		return nil, fmt.Errorf("--params and --params-file are mutually exclusive")
	}

	var raw []byte
	switch {
	case o.params != "":
		raw = []byte(o.params)
	case o.paramsFile != "":
		data, err := os.ReadFile(o.paramsFile)
		if err != nil {
			return nil, fmt.Errorf("reading params file: %w", err)
		}
		raw = data
	default:
		return map[string]any{}, nil
	}

	params := map[string]any{}
	if err := yaml.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("decoding params: %w", err)
	}

	return params, nil
}

// payload builds the webhook body the platform would send.
func (o *callOptions) payload() (*hooks.Request, error) {
	params, err := o.loadParams()
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding params: %w", err)
	}

	req := &hooks.Request{Master: o.master, Params: b}
	if o.userID != "" || o.sessionToken != "" {
		req.User = &models.User{ObjectID: o.userID, SessionToken: o.sessionToken}
	}

	return req, nil
}

func callFunction(ctx context.Context, o *callOptions, name string) (map[string]any, error) {
	body, err := o.payload()
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	target := o.serverURL + "/hooks/functions/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.WebhookKeyHeader, o.key)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}

	var out map[string]any
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return out, nil
}
