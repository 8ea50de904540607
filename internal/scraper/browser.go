package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// BrowserFetcher is a Fetcher driving a single headless Chrome tab. Page loads
// are navigations; form posts are sent as synchronous XHRs from the current
// page so the browser's cookies apply. Fetches are serialized on the tab.
type BrowserFetcher struct {
	mu      sync.Mutex
	ctx     context.Context
	cancels []context.CancelFunc
	logger  *zap.Logger
}

// NewBrowserFetcher starts a browser. Close must be called to shut it down.
func NewBrowserFetcher(ctx context.Context, visible bool, logger *zap.Logger) (*BrowserFetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !visible),
		chromedp.Flag("no-sandbox", true),            // Required for running as root on Linux
		chromedp.Flag("disable-gpu", true),           // Recommended for headless Linux
		chromedp.Flag("disable-dev-shm-usage", true), // Avoid /dev/shm issues on Linux
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(userAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	f := &BrowserFetcher{
		ctx:     browserCtx,
		cancels: []context.CancelFunc{cancelBrowser, cancelAlloc},
		logger:  logger,
	}

	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		f.Close()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	return f, nil
}

// Close shuts the browser down
func (f *BrowserFetcher) Close() {
	for _, cancel := range f.cancels {
		cancel()
	}
}

// Fetch loads req in the browser tab
func (f *BrowserFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Bound the browser actions by the caller's context as well
	runCtx, cancel := context.WithCancel(f.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var (
		resp *Response
		err  error
	)
	switch req.Method {
	case "", http.MethodGet:
		resp, err = f.navigate(runCtx, req)
	case http.MethodPost:
		resp, err = f.post(runCtx, req)
	default:
		err = fmt.Errorf("unsupported method %s", req.Method)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}

	f.logger.Debug("fetched page in browser",
		zap.String("method", req.Method),
		zap.String("url", resp.URL),
		zap.Int("status", resp.StatusCode),
	)
	return resp, nil
}

func (f *BrowserFetcher) navigate(ctx context.Context, req *Request) (*Response, error) {
	headers := network.Headers{}
	for k, v := range req.Headers {
		headers[k] = v
	}

	if err := chromedp.Run(ctx, network.SetExtraHTTPHeaders(headers)); err != nil {
		return nil, fmt.Errorf("setting headers: %w", err)
	}

	res, err := chromedp.RunResponse(ctx, chromedp.Navigate(req.URL))
	if err != nil {
		return nil, fmt.Errorf("navigating: %w", err)
	}

	var location, body string
	if err := chromedp.Run(ctx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &body, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("reading page: %w", err)
	}

	status := http.StatusOK
	if res != nil {
		status = int(res.Status)
	}
	return &Response{StatusCode: status, URL: location, Body: body}, nil
}

func (f *BrowserFetcher) post(ctx context.Context, req *Request) (*Response, error) {
	target, err := json.Marshal(req.URL)
	if err != nil {
		return nil, err
	}
	headers, err := json.Marshal(req.Headers)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(req.Form.Encode())
	if err != nil {
		return nil, err
	}

	var raw string
	if err := chromedp.Run(ctx,
		chromedp.Evaluate(fmt.Sprintf(`
			(() => {
				const xhr = new XMLHttpRequest();
				xhr.open('POST', %s, false); // synchronous
				xhr.setRequestHeader('Content-Type', 'application/x-www-form-urlencoded');
				const headers = %s || {};
				for (const name in headers) {
					xhr.setRequestHeader(name, headers[name]);
				}
				xhr.send(%s);
				return JSON.stringify({status: xhr.status, url: xhr.responseURL, body: xhr.responseText});
			})()
		`, target, headers, body), &raw),
	); err != nil {
		return nil, fmt.Errorf("posting form via XHR: %w", err)
	}

	var out struct {
		Status int    `json:"status"`
		URL    string `json:"url"`
		Body   string `json:"body"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decoding XHR result: %w", err)
	}
	if out.URL == "" {
		out.URL = req.URL
	}
	return &Response{StatusCode: out.Status, URL: out.URL, Body: out.Body}, nil
}
