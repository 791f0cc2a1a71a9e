package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/ledger"
	"github.com/alfredjeanlab/cafetrace/internal/model"
	"github.com/alfredjeanlab/cafetrace/internal/presence"
)

const actorHeader = "X-Actor-ID"

// HTTPClient implements LedgerClient using the cafetrace HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	opts       Options
	httpClient *http.Client
}

var _ LedgerClient = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080").
func NewHTTPClient(baseURL string, opts Options) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		opts:       opts,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func microlotPath(id string, rest ...string) string {
	p := "/v1/microlots/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// --- Microlots ---

func (c *HTTPClient) CreateMicrolot(ctx context.Context, in *ledger.CreateMicrolotInput) (*model.Microlot, error) {
	var m model.Microlot
	if err := c.doJSON(ctx, http.MethodPost, "/v1/microlots", in, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *HTTPClient) GetMicrolot(ctx context.Context, id string) (*model.Microlot, error) {
	var m model.Microlot
	if err := c.doJSON(ctx, http.MethodGet, microlotPath(id), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *HTTPClient) ListMicrolots(ctx context.Context, f *model.MicrolotFilter) (*ListMicrolotsResponse, error) {
	q := url.Values{}
	if len(f.Status) > 0 {
		statuses := make([]string, len(f.Status))
		for i, s := range f.Status {
			statuses[i] = string(s)
		}
		q.Set("status", strings.Join(statuses, ","))
	}
	if len(f.QualityGrade) > 0 {
		q.Set("quality_grade", strings.Join(f.QualityGrade, ","))
	}
	if f.LotRef != "" {
		q.Set("lot_ref", f.LotRef)
	}
	if f.HarvestRef != "" {
		q.Set("harvest_ref", f.HarvestRef)
	}
	if f.IncludeInactive {
		q.Set("include_inactive", "true")
	}
	if f.Flagged != nil {
		q.Set("flagged", strconv.FormatBool(*f.Flagged))
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Sort != "" {
		q.Set("sort", f.Sort)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}

	path := "/v1/microlots"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListMicrolotsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) DeactivateMicrolot(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, microlotPath(id), nil, nil)
}

// --- Chain ---

func (c *HTTPClient) AdvanceStatus(ctx context.Context, in *ledger.AppendInput) (*model.Microlot, error) {
	body := map[string]any{
		"event_type":  in.EventType,
		"description": in.Description,
	}
	if in.EventDate != nil {
		body["event_date"] = in.EventDate
	}
	if in.Metadata != nil {
		body["metadata"] = in.Metadata
	}
	var m model.Microlot
	if err := c.doJSON(ctx, http.MethodPatch, microlotPath(in.MicrolotID, "status"), body, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *HTTPClient) AppendEvent(ctx context.Context, in *ledger.AppendInput) (*model.TraceabilityEvent, error) {
	var e model.TraceabilityEvent
	if err := c.doJSON(ctx, http.MethodPost, "/v1/events", in, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *HTTPClient) ListEvents(ctx context.Context, microlotID string) ([]*model.TraceabilityEvent, error) {
	var chain []*model.TraceabilityEvent
	if err := c.doJSON(ctx, http.MethodGet, microlotPath(microlotID, "events"), nil, &chain); err != nil {
		return nil, err
	}
	return chain, nil
}

func (c *HTTPClient) VerifyChain(ctx context.Context, microlotID string) (*ledger.Verification, error) {
	var v ledger.Verification
	if err := c.doJSON(ctx, http.MethodGet, microlotPath(microlotID, "verify"), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *HTTPClient) ResolveIntegrity(ctx context.Context, microlotID, note string) (*ledger.Verification, error) {
	body := map[string]string{"note": note}
	var v ledger.Verification
	if err := c.doJSON(ctx, http.MethodPost, microlotPath(microlotID, "integrity", "resolve"), body, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// --- Quality and certifications ---

func (c *HTTPClient) RecordQualityControl(ctx context.Context, in *ledger.QualityInput) (*model.QualityControlRecord, error) {
	var rec model.QualityControlRecord
	if err := c.doJSON(ctx, http.MethodPost, "/v1/quality-control", in, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *HTTPClient) ListQualityRecords(ctx context.Context, microlotID string) ([]*model.QualityControlRecord, error) {
	var records []*model.QualityControlRecord
	if err := c.doJSON(ctx, http.MethodGet, microlotPath(microlotID, "quality-control"), nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *HTTPClient) AttachCertification(ctx context.Context, in *ledger.CertificationInput) (*model.CertificationRecord, error) {
	var rec model.CertificationRecord
	if err := c.doJSON(ctx, http.MethodPost, "/v1/certifications", in, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *HTTPClient) RevokeCertification(ctx context.Context, certID, reason string) (*model.CertificationRecord, error) {
	body := map[string]string{"reason": reason}
	var rec model.CertificationRecord
	if err := c.doJSON(ctx, http.MethodPost, "/v1/certifications/"+url.PathEscape(certID)+"/revoke", body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *HTTPClient) ListCertifications(ctx context.Context, microlotID string) ([]*model.CertificationRecord, error) {
	var certs []*model.CertificationRecord
	if err := c.doJSON(ctx, http.MethodGet, microlotPath(microlotID, "certifications"), nil, &certs); err != nil {
		return nil, err
	}
	return certs, nil
}

// --- Read side ---

func (c *HTTPClient) PublicView(ctx context.Context, code string) (*model.PublicView, error) {
	var view model.PublicView
	if err := c.doJSON(ctx, http.MethodGet, "/v1/public/"+url.PathEscape(code), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *HTTPClient) Stats(ctx context.Context) (*model.Stats, error) {
	var stats model.Stats
	if err := c.doJSON(ctx, http.MethodGet, "/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (c *HTTPClient) Actors(ctx context.Context, stale time.Duration) ([]presence.Entry, error) {
	path := "/v1/actors"
	if stale > 0 {
		path += "?stale=" + url.QueryEscape(stale.String())
	}
	var entries []presence.Entry
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Kind       string // ledger error kind, e.g. "not_found"
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	if c.opts.Actor != "" {
		req.Header.Set(actorHeader, c.opts.Actor)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Kind: errResp.Kind, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
