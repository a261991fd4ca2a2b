// Package files resolves stored file URLs and downloads their contents over
// HTTP or from S3.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

// Errors returned by Fetch.
var (
	ErrTooLarge     = errors.New("file exceeds size limit")
	ErrUnsupported  = errors.New("unsupported file url scheme")
	ErrNoS3Client   = errors.New("s3 url without s3 client")
	ErrNotAvailable = errors.New("file not available")
)

// Rule rewrites URLs starting with From to start with To.
type Rule struct {
	From string
	To   string
}

// ObjectGetter is the subset of the S3 client used to read objects.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Options configures a Fetcher.
type Options struct {
	Rules        []Rule
	AllowedHosts []string
	MaxBytes     int64
	Timeout      time.Duration
	HTTPClient   *http.Client
	S3           ObjectGetter
}

// Fetcher implements domain.FileFetcher.
type Fetcher struct {
	rules    []Rule
	allowed  map[string]bool
	maxBytes int64
	client   *http.Client
	s3       ObjectGetter
	log      *logrus.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts Options, log *logrus.Logger) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}

	allowed := make(map[string]bool, len(opts.AllowedHosts))
	for _, h := range opts.AllowedHosts {
		allowed[strings.ToLower(h)] = true
	}

	return &Fetcher{
		rules:    opts.Rules,
		allowed:  allowed,
		maxBytes: maxBytes,
		client:   client,
		s3:       opts.S3,
		log:      log,
	}
}

// NewS3Client loads the default AWS configuration for region.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return s3.NewFromConfig(cfg), nil
}

// NeedsS3 reports whether any rule targets an s3:// location.
func NeedsS3(rules []Rule) bool {
	for _, r := range rules {
		if strings.HasPrefix(r.To, "s3://") {
			return true
		}
	}
	return false
}

// Rewrite applies the first matching rule. Unmatched URLs are returned unchanged.
func (f *Fetcher) Rewrite(rawURL string) string {
	for _, r := range f.rules {
		if rest, ok := strings.CutPrefix(rawURL, r.From); ok {
			return r.To + rest
		}
	}
	return rawURL
}

// Allowed reports whether a caller-supplied URL may be fetched: it must match
// a rewrite rule or point at an allow-listed host.
func (f *Fetcher) Allowed(rawURL string) bool {
	for _, r := range f.rules {
		if strings.HasPrefix(rawURL, r.From) {
			return true
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}

	return f.allowed[strings.ToLower(u.Hostname())]
}

// Fetch rewrites rawURL and downloads it, up to the size limit.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	target := f.Rewrite(rawURL)

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parsing file url: %w", err)
	}

	logger := f.log.WithFields(logrus.Fields{"url": rawURL, "target": target})

	var body []byte
	switch u.Scheme {
	case "http", "https":
		body, err = f.fetchHTTP(ctx, target)
	case "s3":
		body, err = f.fetchS3(ctx, u)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, u.Scheme)
	}

	if err != nil {
		logger.WithError(err).Warn("file fetch failed")
		return nil, err
	}

	logger.WithField("bytes", len(body)).Debug("file fetched")

	return body, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: status %d", ErrNotAvailable, resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file, status: %d", resp.StatusCode)
	}

	return f.readLimited(resp.Body)
}

func (f *Fetcher) fetchS3(ctx context.Context, u *url.URL) ([]byte, error) {
	if f.s3 == nil {
		return nil, ErrNoS3Client
	}

	out, err := f.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Host),
		Key:    aws.String(strings.TrimPrefix(u.Path, "/")),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%w: %s", ErrNotAvailable, u.Path)
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer func() { _ = out.Body.Close() }()

	return f.readLimited(out.Body)
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	if int64(len(body)) > f.maxBytes {
		return nil, ErrTooLarge
	}

	return body, nil
}
