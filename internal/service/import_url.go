package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/cloo-solutions/kbpipe/internal/extract"
	"github.com/cloo-solutions/kbpipe/internal/telemetry"
	"golang.org/x/net/html/charset"
)

const (
	URLImportUserAgent     = "kbpipe-importer/1.0 (+knowledge ingestion)"
	DefaultURLFetchTimeout = 30 * time.Second
	maxPageSize            = 10 << 20
)

// URLImportService ingests a web page.
type URLImportService struct {
	importer
	httpClient *http.Client
	retry      RetryPolicy
}

// NewURLImportService creates a URLImportService. httpClient may be nil.
func NewURLImportService(
	items KnowledgeRepositoryInterface,
	logs ImportLogRepositoryInterface,
	writer *ContentWriter,
	processor ItemProcessor,
	httpClient *http.Client,
	fetchTimeout time.Duration,
) *URLImportService {
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultURLFetchTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: fetchTimeout}
	}
	return &URLImportService{
		importer:   newImporter(items, logs, nil, writer, processor),
		httpClient: httpClient,
		retry:      DefaultRetryPolicy(),
	}
}

// WithRetryPolicy overrides the 429 backoff policy.
func (s *URLImportService) WithRetryPolicy(p RetryPolicy) *URLImportService {
	s.retry = p
	return s
}

type URLImportInput struct {
	OrgID    string
	AgentID  string
	URL      string
	Title    string
	Category string
	Type     domain.KnowledgeType
}

func (s *URLImportService) Import(ctx context.Context, input URLImportInput) (*ImportResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "URLImportService.Import", telemetry.SpanAttributes{
		OrgID:     input.OrgID,
		Operation: "import_url",
	})
	defer span.End()

	if input.OrgID == "" || strings.TrimSpace(input.URL) == "" {
		return nil, domain.ErrMissingRequiredField
	}
	if input.Type != "" && !domain.IsValidKnowledgeType(input.Type) {
		return nil, domain.ErrInvalidKnowledgeType
	}
	target, err := ValidateImportURL(input.URL)
	if err != nil {
		return nil, err
	}

	l, err := s.begin(ctx, input.OrgID, domain.ImportSourceURL, target.String())
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	provisional := title
	if provisional == "" {
		provisional = target.Host + target.Path
	}

	item := s.newItem(input.OrgID, provisional, input.Type, domain.KnowledgeSourceImportURL)
	item.AgentID = input.AgentID
	item.Category = input.Category
	item.SourceURL = target.String()
	item.Metadata[domain.MetaScrapedAt] = s.now().Format(time.RFC3339)

	if err := s.create(ctx, l, item); err != nil {
		span.SetError(err)
		return nil, err
	}

	page, err := s.fetch(ctx, target.String())
	if err != nil {
		span.SetError(err)
		return &ImportResult{Item: item, ImportLogID: l.ID}, s.abort(ctx, l, item, err)
	}

	text, err := extract.HTML(page)
	if err != nil {
		span.SetError(err)
		return &ImportResult{Item: item, ImportLogID: l.ID}, s.abort(ctx, l, item, err)
	}

	change := ContentChange{Content: &text}
	if title == "" {
		if pageTitle := extract.PageTitle(page); pageTitle != "" {
			change.Title = &pageTitle
		}
	}

	result, err := s.ingest(ctx, l, item, change)
	if err != nil {
		span.SetError(err)
	}
	return result, err
}

// fetch downloads the page, retrying only on HTTP 429.
func (s *URLImportService) fetch(ctx context.Context, target string) (string, error) {
	var page string
	err := RetryOn429(ctx, s.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", URLImportUserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return domain.NewDomainErrorWithCause(domain.ErrFetchFailed.Code, domain.ErrFetchFailed.Message, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return NewRateLimitError(resp)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return domain.NewDomainErrorWithCause(domain.ErrFetchFailed.Code, domain.ErrFetchFailed.Message,
				fmt.Errorf("unexpected status %d", resp.StatusCode))
		}

		body, err := charset.NewReader(io.LimitReader(resp.Body, maxPageSize), resp.Header.Get("Content-Type"))
		if err != nil {
			return domain.NewDomainErrorWithCause(domain.ErrFetchFailed.Code, domain.ErrFetchFailed.Message, err)
		}
		data, err := io.ReadAll(body)
		if err != nil {
			return domain.NewDomainErrorWithCause(domain.ErrFetchFailed.Code, domain.ErrFetchFailed.Message, err)
		}
		page = string(data)
		return nil
	})
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return "", domain.NewDomainErrorWithCause(domain.ErrFetchFailed.Code, domain.ErrFetchFailed.Message, rl)
	}
	return page, err
}

// ValidateImportURL accepts absolute http and https URLs with a host.
func ValidateImportURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrInvalidURL.Code, domain.ErrInvalidURL.Message, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, domain.ErrInvalidURL
	}
	u.Fragment = ""
	return u, nil
}
