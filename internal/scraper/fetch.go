package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Request is one page load issued by the navigator
type Request struct {
	Method  string // GET or POST
	URL     string
	Form    url.Values
	Headers map[string]string
}

// Response is a fetched page after redirects have been followed
type Response struct {
	StatusCode int
	URL        string // final URL
	Body       string
}

// Document parses the response body as HTML
func (r *Response) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("parsing html from %s: %w", r.URL, err)
	}
	if u, err := url.Parse(r.URL); err == nil && r.URL != "" {
		doc.Url = u
	}
	return doc, nil
}

// Fetcher loads pages within a single browsing session. Cookies set by one
// response must be sent with the following requests.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// FetcherFactory opens a fresh session for one collection run
type FetcherFactory func() (Fetcher, error)

// HTTPFetcher is a Fetcher backed by a resty client with its own cookie jar
type HTTPFetcher struct {
	client *resty.Client
}

// NewHTTPFetcher creates a fetcher with an empty cookie jar
func NewHTTPFetcher(logger *zap.Logger) (*HTTPFetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.SetHeader("User-Agent", userAgent)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	client.SetTimeout(30 * time.Second)
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		logger.Debug("fetched page",
			zap.String("method", res.Request.Method),
			zap.String("url", res.Request.URL),
			zap.Int("status", res.StatusCode()),
			zap.Duration("elapsed", res.Time()),
		)
		return nil
	})

	return &HTTPFetcher{client: client}, nil
}

// Fetch performs req, following redirects
func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	r := f.client.R().SetContext(ctx).SetHeaders(req.Headers)
	if req.Form != nil {
		r.SetFormDataFromValues(req.Form)
	}

	res, err := r.Execute(method, req.URL)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.URL, err)
	}

	finalURL := req.URL
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalURL = res.RawResponse.Request.URL.String()
	}

	return &Response{
		StatusCode: res.StatusCode(),
		URL:        finalURL,
		Body:       string(res.Body()),
	}, nil
}
