package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jgoulah/waterscraper/pkg/models"
	"go.uber.org/zap"
)

// DefaultPortalURL is the BVK customer portal entry point
const DefaultPortalURL = "https://zis.bvk.cz/"

const (
	loginFormID      = "ctl00_ctl00_lvLoginForm_LoginDialog1_PanelLogin"
	loginEmailField  = "ctl00$ctl00$lvLoginForm$LoginDialog1$edEmail"
	loginPassField   = "ctl00$ctl00$lvLoginForm$LoginDialog1$edPassword"
	loginButtonField = "ctl00$ctl00$lvLoginForm$LoginDialog1$btnLogin"

	// ASP.NET AJAX partial postback responses are '|'-delimited; this field
	// holds the action and the one two places later its target.
	redirectMarkerField = 5
	redirectTargetField = 7
	redirectMarker      = "pageRedirect"
	mainInfoPath        = "/Userdata/MainInfo.aspx"

	ssoLinkSelector = "a#ctl00_ctl00_ctl00_ContentPlaceHolder1Common_ContentPlaceHolder1_UserDataContentPlaceHolder_btnPortalEmis"
	consumptionPath = "/eMIS.SE_BVK/Site_Energie.aspx"
	dailyViewMode   = "ConsoJour"
)

// Credentials are the portal login
type Credentials struct {
	Username string
	Password string
}

// State is a step of the portal session
type State int

const (
	StateStart State = iota
	StateLoggingIn
	StateMainInfo
	StateSubPortal
	StateFetching
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateLoggingIn:
		return "logging in"
	case StateMainInfo:
		return "main info"
	case StateSubPortal:
		return "sub-portal"
	case StateFetching:
		return "fetching"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Navigator walks one portal session from the login form to the monthly
// consumption pages. The login chain is strictly sequential; once the
// sub-portal is reached FetchPeriod may be called concurrently.
type Navigator struct {
	fetcher Fetcher
	creds   Credentials
	rootURL string
	logger  *zap.Logger

	mu      sync.Mutex
	state   State
	err     error
	pending *Request  // login form, built in StateStart
	page    *Response // last page of the login chain
	portal  *url.URL  // sub-portal base, set on reaching StateSubPortal
}

// NewNavigator creates a navigator in StateStart
func NewNavigator(fetcher Fetcher, creds Credentials, rootURL string, logger *zap.Logger) *Navigator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{
		fetcher: fetcher,
		creds:   creds,
		rootURL: rootURL,
		logger:  logger,
	}
}

// State returns the current state
func (n *Navigator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Err returns the error that moved the navigator to StateFailed
func (n *Navigator) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

// Step performs the next transition of the login chain
func (n *Navigator) Step(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var err error
	switch n.state {
	case StateStart:
		err = n.openLoginForm(ctx)
	case StateLoggingIn:
		err = n.submitLogin(ctx)
	case StateMainInfo:
		err = n.enterSubPortal(ctx)
	case StateFailed:
		return n.err
	default:
		return fmt.Errorf("no login step from state %s", n.state)
	}
	if err != nil {
		n.fail(err)
	}
	return err
}

// Login steps through the chain until the sub-portal session is established
func (n *Navigator) Login(ctx context.Context) error {
	for {
		switch n.State() {
		case StateSubPortal, StateFetching:
			return nil
		}
		if err := n.Step(ctx); err != nil {
			return err
		}
	}
}

// FetchPeriod loads one month of daily consumption and returns the records
// dated within [notBefore, notAfter]
func (n *Navigator) FetchPeriod(ctx context.Context, p Period, notBefore, notAfter time.Time) ([]models.Consumption, error) {
	resp, err := n.PeriodPage(ctx, p)
	if err != nil {
		return nil, err
	}

	doc, err := resp.Document()
	if err != nil {
		return nil, n.failed(&FetchError{Period: p, Err: err})
	}

	records, err := ExtractRecords(doc, notBefore, notAfter)
	if err != nil {
		return nil, n.failed(&FetchError{Period: p, Err: err})
	}

	n.logger.Debug("parsed period", zap.Stringer("period", p), zap.Int("records", len(records)))
	return records, nil
}

// PeriodPage loads the raw daily consumption page of one month
func (n *Navigator) PeriodPage(ctx context.Context, p Period) (*Response, error) {
	n.mu.Lock()
	switch n.state {
	case StateSubPortal, StateFetching:
		n.state = StateFetching
	case StateFailed:
		defer n.mu.Unlock()
		return nil, n.err
	default:
		defer n.mu.Unlock()
		return nil, fmt.Errorf("cannot fetch %s from state %s", p, n.state)
	}
	target := periodURL(n.portal, p)
	n.mu.Unlock()

	n.logger.Debug("fetching period", zap.Stringer("period", p), zap.String("url", target))

	resp, err := n.get(ctx, target)
	if err != nil {
		return nil, n.failed(&FetchError{Period: p, Err: err})
	}
	return resp, nil
}

// Finish marks the session done
func (n *Navigator) Finish() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateSubPortal, StateFetching:
		n.state = StateDone
		return nil
	case StateFailed:
		return n.err
	default:
		return fmt.Errorf("cannot finish from state %s", n.state)
	}
}

// Start -> LoggingIn
func (n *Navigator) openLoginForm(ctx context.Context) error {
	resp, err := n.get(ctx, n.rootURL)
	if err != nil {
		return fmt.Errorf("loading portal: %w", err)
	}

	req, err := loginRequest(resp, n.creds)
	if err != nil {
		return err
	}

	n.pending = req
	n.state = StateLoggingIn
	return nil
}

// LoggingIn -> MainInfo
func (n *Navigator) submitLogin(ctx context.Context) error {
	resp, err := n.fetcher.Fetch(ctx, n.pending)
	if err != nil {
		return fmt.Errorf("submitting login: %w", err)
	}
	n.pending = nil

	target, err := loginRedirect(resp)
	if err != nil {
		return err
	}
	n.logger.Debug("login accepted", zap.String("redirect", target))

	page, err := n.get(ctx, target)
	if err != nil {
		return fmt.Errorf("loading account page: %w", err)
	}

	n.page = page
	n.state = StateMainInfo
	return nil
}

// MainInfo -> SubPortal
func (n *Navigator) enterSubPortal(ctx context.Context) error {
	link, err := ssoLink(n.page)
	if err != nil {
		return err
	}

	resp, err := n.get(ctx, link)
	if err != nil {
		return fmt.Errorf("entering consumption portal: %w", err)
	}

	portal, err := url.Parse(resp.URL)
	if err != nil {
		return fmt.Errorf("parsing portal url: %w", err)
	}

	n.logger.Debug("entered consumption portal", zap.String("url", resp.URL))
	n.portal = portal
	n.page = nil
	n.state = StateSubPortal
	return nil
}

func (n *Navigator) get(ctx context.Context, target string) (*Response, error) {
	resp, err := n.fetcher.Fetch(ctx, &Request{Method: http.MethodGet, URL: target})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{URL: resp.URL, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (n *Navigator) fail(err error) {
	// First failure wins
	if n.state == StateFailed {
		return
	}
	n.logger.Debug("session failed", zap.Stringer("state", n.state), zap.Error(err))
	n.state = StateFailed
	n.err = err
}

func (n *Navigator) failed(err error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fail(err)
	return err
}

// loginRequest builds the login post from the form on the portal root page,
// keeping the hidden ASP.NET state fields
func loginRequest(page *Response, creds Credentials) (*Request, error) {
	doc, err := page.Document()
	if err != nil {
		return nil, err
	}

	form := doc.Find("form#" + loginFormID).First()
	if form.Length() == 0 {
		return nil, &NavigationError{Page: page.URL, Element: "login form #" + loginFormID}
	}

	action, err := resolve(page.URL, form.AttrOr("action", ""))
	if err != nil {
		return nil, fmt.Errorf("resolving login form action: %w", err)
	}

	fields := formValues(form)
	fields.Set(loginEmailField, creds.Username)
	fields.Set(loginPassField, creds.Password)
	fields.Set(loginButtonField, "Login")

	return &Request{
		Method:  http.MethodPost,
		URL:     action,
		Form:    fields,
		Headers: map[string]string{"X-MicrosoftAjax": "Delta=true"},
	}, nil
}

// formValues collects what a browser would submit for form without clicking
// any button
func formValues(form *goquery.Selection) url.Values {
	values := url.Values{}

	form.Find("input[name]").Each(func(_ int, input *goquery.Selection) {
		name, _ := input.Attr("name")
		switch strings.ToLower(input.AttrOr("type", "text")) {
		case "submit", "image", "button", "reset", "file":
			return
		case "checkbox", "radio":
			if _, checked := input.Attr("checked"); !checked {
				return
			}
			values.Add(name, input.AttrOr("value", "on"))
		default:
			values.Add(name, input.AttrOr("value", ""))
		}
	})

	form.Find("select[name]").Each(func(_ int, sel *goquery.Selection) {
		name, _ := sel.Attr("name")
		option := sel.Find("option[selected]").First()
		if option.Length() == 0 {
			option = sel.Find("option").First()
		}
		if option.Length() == 0 {
			return
		}
		values.Add(name, option.AttrOr("value", strings.TrimSpace(option.Text())))
	})

	form.Find("textarea[name]").Each(func(_ int, area *goquery.Selection) {
		name, _ := area.Attr("name")
		values.Add(name, area.Text())
	})

	return values
}

// loginRedirect checks the partial postback answer to the login form and
// returns the absolute URL of the page it redirects to
func loginRedirect(resp *Response) (string, error) {
	parts := strings.Split(resp.Body, "|")
	if len(parts) <= redirectMarkerField || parts[redirectMarkerField] != redirectMarker {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: resp.Body}
	}

	target := mainInfoPath
	if len(parts) > redirectTargetField {
		if unescaped, err := url.QueryUnescape(parts[redirectTargetField]); err == nil && unescaped != "" {
			target = unescaped
		}
	}

	return resolve(resp.URL, target)
}

// ssoLink returns the absolute href of the consumption portal link
func ssoLink(page *Response) (string, error) {
	doc, err := page.Document()
	if err != nil {
		return "", err
	}

	href := strings.TrimSpace(doc.Find(ssoLinkSelector).First().AttrOr("href", ""))
	if href == "" {
		return "", &NavigationError{Page: page.URL, Element: "consumption portal link"}
	}

	return resolve(page.URL, href)
}

// periodURL is the daily consumption view of p on the sub-portal
func periodURL(portal *url.URL, p Period) string {
	query := url.Values{}
	query.Set("Affichage", dailyViewMode)
	query.Set("Annee", fmt.Sprint(p.Year))
	query.Set("Mois", fmt.Sprint(int(p.Month)))

	return portal.ResolveReference(&url.URL{Path: consumptionPath, RawQuery: query.Encode()}).String()
}

func resolve(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
