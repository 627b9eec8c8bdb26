package syncapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/supplysync/server/internal/observability"
)

const HeaderContentSHA256 = "X-Content-SHA256"

// Config holds the connection settings for a central server
type Config struct {
	BaseURL  string
	SiteName string
	// PasswordHash is the SHA-256 hex digest of the site password
	PasswordHash string
	Timeout      time.Duration
	MaxRetries   uint
	// InitialBackoff is the delay before the first retry
	InitialBackoff time.Duration
}

// Client talks to the central server's sync endpoints
type Client struct {
	baseURL        string
	siteName       string
	passwordHash   string
	httpClient     *http.Client
	maxRetries     uint
	initialBackoff time.Duration
	logger         *observability.Logger
}

// NewClient creates a new Client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = 500 * time.Millisecond
	}

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/") + BasePath,
		siteName:       cfg.SiteName,
		passwordHash:   cfg.PasswordHash,
		httpClient:     &http.Client{Timeout: timeout},
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
		logger:         observability.GetLogger().WithField("component", "syncapi"),
	}
}

// InitialDump pulls a batch of everything visible to this site, ignoring
// which site last wrote each record
func (c *Client) InitialDump(ctx context.Context, req PullRequest) (*PullBatch, error) {
	var batch PullBatch
	if err := c.postJSON(ctx, "initial_dump", req, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// GetQueuedRecords pulls the next batch of changes after req.Cursor
func (c *Client) GetQueuedRecords(ctx context.Context, req PullRequest) (*PullBatch, error) {
	var batch PullBatch
	if err := c.postJSON(ctx, "pull", req, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// PostQueuedRecords pushes records and returns the server's verdict per record
func (c *Client) PostQueuedRecords(ctx context.Context, records []Record) (*PushResponse, error) {
	var resp PushResponse
	if err := c.postJSON(ctx, "push", PushRequest{Records: records}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PostAcknowledgedRecords confirms that a pulled batch was integrated
func (c *Client) PostAcknowledgedRecords(ctx context.Context, req AcknowledgeRequest) error {
	return c.postJSON(ctx, "acknowledge", req, nil)
}

// SiteStatus reports whether the central server is integrating a push from this site
func (c *Client) SiteStatus(ctx context.Context) (*SiteStatus, error) {
	var status SiteStatus
	err := c.call(ctx, "site_status", func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, c.baseURL+"/site_status", nil)
	}, &status)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// UploadFile sends a file for a reference the server already knows about.
// content is rewound before every attempt.
func (c *Client) UploadFile(ctx context.Context, upload FileUpload, content io.ReadSeeker, sha256Hex string) error {
	return c.call(ctx, "upload_file", func() (*http.Request, error) {
		if _, err := content.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}

		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		if err := writer.WriteField("reference_id", upload.ReferenceID); err != nil {
			return nil, err
		}
		part, err := writer.CreateFormFile("file", upload.FileName)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, content); err != nil {
			return nil, err
		}
		if err := writer.Close(); err != nil {
			return nil, err
		}

		req, err := http.NewRequest(http.MethodPost, c.baseURL+"/files", &body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		if sha256Hex != "" {
			req.Header.Set(HeaderContentSHA256, sha256Hex)
		}
		return req, nil
	}, nil)
}

// DownloadFile streams a file into w and returns the number of bytes written
func (c *Client) DownloadFile(ctx context.Context, referenceID string, w io.Writer) (int64, error) {
	ctx, span := c.startSpan(ctx, "download_file")
	defer span.End()

	resp, err := c.send(ctx, "download_file", func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, c.baseURL+"/files/"+referenceID, nil)
	})
	if err != nil {
		observability.RecordError(span, err)
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		err = &Error{Kind: KindConnection, Op: "download_file", Err: err}
		observability.RecordError(span, err)
		return n, err
	}
	span.SetAttributes(attribute.Int64("sync.file.bytes", n))
	observability.SetSuccess(span)
	return n, nil
}

func (c *Client) postJSON(ctx context.Context, op string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &Error{Kind: KindParse, Op: op, Err: err}
	}

	return c.call(ctx, op, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.baseURL+"/"+op, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, out)
}

// call sends the request and decodes the envelope's data into out
func (c *Client) call(ctx context.Context, op string, newRequest func() (*http.Request, error), out interface{}) error {
	ctx, span := c.startSpan(ctx, op)
	defer span.End()

	resp, err := c.send(ctx, op, newRequest)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}
	defer resp.Body.Close()

	if out != nil {
		var envelope Envelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			err = &Error{Kind: KindParse, Op: op, StatusCode: resp.StatusCode, Err: err}
			observability.RecordError(span, err)
			return err
		}
		if len(envelope.Data) == 0 {
			envelope.Data = json.RawMessage("null")
		}
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			err = &Error{Kind: KindParse, Op: op, StatusCode: resp.StatusCode, Err: err}
			observability.RecordError(span, err)
			return err
		}
	}

	observability.SetSuccess(span)
	return nil
}

// send performs the request, retrying connection failures with exponential
// backoff. The returned response always has a 2xx status.
func (c *Client) send(ctx context.Context, op string, newRequest func() (*http.Request, error)) (*http.Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff

	attempt := 0
	operation := func() (*http.Response, error) {
		attempt++
		req, err := newRequest()
		if err != nil {
			return nil, backoff.Permanent(&Error{Kind: KindParse, Op: op, Err: err})
		}
		req = req.WithContext(ctx)
		req.SetBasicAuth(c.siteName, c.passwordHash)
		req.Header.Set(HeaderSyncVersion, strconv.Itoa(Version))
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.WithContext(ctx).WithField("attempt", attempt).Warnf("%s failed: %v", op, err)
			return nil, &Error{Kind: KindConnection, Op: op, Err: err}
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		apiErr := c.decodeError(op, resp)
		resp.Body.Close()
		if apiErr.Kind == KindConnection {
			return nil, apiErr
		}
		return nil, backoff.Permanent(apiErr)
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxRetries+1),
	)
	if err != nil {
		var apiErr *Error
		if !errors.As(err, &apiErr) {
			// Context cancelled or deadline passed between attempts
			err = &Error{Kind: KindConnection, Op: op, Err: err}
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) decodeError(op string, resp *http.Response) *Error {
	apiErr := &Error{Op: op, StatusCode: resp.StatusCode}

	var envelope Envelope
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		apiErr.Body = envelope.Error
		apiErr.Kind = envelope.Error.Code
		if apiErr.Kind == KindVersionMismatch {
			var mismatch VersionMismatch
			if json.Unmarshal(envelope.Error.Data, &mismatch) == nil {
				apiErr.Version = &mismatch
			}
		}
		if apiErr.Kind == "" {
			apiErr.Kind = KindServer
		}
		return apiErr
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		apiErr.Kind = KindAuthentication
	case resp.StatusCode == http.StatusNotFound && op == "download_file":
		apiErr.Kind = KindFileNotFound
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		apiErr.Kind = KindConnection
	default:
		apiErr.Kind = KindServer
	}
	apiErr.Err = fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(body)))
	return apiErr
}

func (c *Client) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return observability.StartSpan(ctx, "syncapi."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("sync.site", c.siteName),
			attribute.Int("sync.version", Version),
		),
	)
}
