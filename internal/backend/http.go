package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/publicsuffix"

	"github.com/Badsworth/pfml-scripts-sub007/internal/config"
	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
	"github.com/Badsworth/pfml-scripts-sub007/internal/util"
)

// maxResponseBytes caps how much of a response body is read
const maxResponseBytes = 1 << 20

// HTTPBackend submits claims to the intake API over HTTP
type HTTPBackend struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
	limiter    *Limiter
}

// Intake API envelope
type submitResponse struct {
	Data    *submitData     `json:"data"`
	Message string          `json:"message"`
	Errors  []responseError `json:"errors"`
}

type submitData struct {
	ApplicationID   string `json:"application_id"`
	FineosAbsenceID string `json:"fineos_absence_id"`
}

type responseError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NewHTTPBackend creates an HTTP backend. limiter may be nil.
func NewHTTPBackend(cfg config.BackendConfig, limiter *Limiter) (*HTTPBackend, error) {
	if cfg.BaseURL == "" {
		return nil, eris.New("backend: base_url is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	proxy, err := util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy)
	if err != nil {
		return nil, eris.Wrap(err, "backend: parse proxy")
	}

	// The intake API pins sessions to a load balancer cookie
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, eris.Wrap(err, "backend: create cookie jar")
	}

	if limiter == nil {
		limiter = NewLimiter(0, 1)
	}

	return &HTTPBackend{
		endpoint:  strings.TrimSuffix(cfg.BaseURL, "/") + "/" + strings.TrimPrefix(cfg.SubmitPath, "/"),
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
			Transport: &http.Transport{
				Proxy: proxy,
			},
		},
		limiter: limiter,
	}, nil
}

// Name returns the backend name
func (b *HTTPBackend) Name() string {
	return "http"
}

// Submit posts the claim payload and parses the identifiers from the response
func (b *HTTPBackend) Submit(ctx context.Context, claim model.ClaimRecord, creds *Credentials) (Submission, error) {
	if err := b.limiter.Wait(ctx, b.endpoint); err != nil {
		return Submission{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(claim.Payload))
	if err != nil {
		return Submission{}, eris.Wrap(err, "backend: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if b.userAgent != "" {
		req.Header.Set("User-Agent", b.userAgent)
	}
	if creds != nil {
		if creds.Token != "" {
			req.Header.Set("Authorization", "Bearer "+creds.Token)
		} else if creds.Username != "" {
			req.SetBasicAuth(creds.Username, creds.Password)
		}
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return Submission{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Submission{}, &Error{Kind: model.ErrorTransient, StatusCode: resp.StatusCode, Message: "read response: " + err.Error()}
	}

	var envelope submitResponse
	decodeErr := json.Unmarshal(body, &envelope)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Submission{}, &Error{
			Kind:       KindForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    failureMessage(envelope, body, decodeErr),
		}
	}

	if decodeErr != nil {
		return Submission{}, &Error{Kind: model.ErrorUnknown, StatusCode: resp.StatusCode, Message: "malformed response: " + decodeErr.Error()}
	}
	if envelope.Data == nil || envelope.Data.ApplicationID == "" {
		return Submission{}, &Error{Kind: model.ErrorUnknown, StatusCode: resp.StatusCode, Message: "response has no application_id"}
	}

	return Submission{
		ApplicationID: envelope.Data.ApplicationID,
		CaseID:        envelope.Data.FineosAbsenceID,
	}, nil
}

func failureMessage(envelope submitResponse, body []byte, decodeErr error) string {
	if decodeErr != nil {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		if msg == "" {
			msg = "empty response"
		}
		return msg
	}

	parts := make([]string, 0, len(envelope.Errors)+1)
	if envelope.Message != "" {
		parts = append(parts, envelope.Message)
	}
	for _, e := range envelope.Errors {
		if e.Field != "" {
			parts = append(parts, e.Field+": "+e.Message)
		} else {
			parts = append(parts, e.Message)
		}
	}
	if len(parts) == 0 {
		return "no error detail"
	}
	return strings.Join(parts, "; ")
}
