package scraper

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNavigator(t *testing.T, portal *fakePortal, creds Credentials) *Navigator {
	t.Helper()
	fetcher, err := NewHTTPFetcher(nil)
	require.NoError(t, err)
	return NewNavigator(fetcher, creds, portal.rootURL(), nil)
}

func TestNavigatorSteps(t *testing.T) {
	portal := newFakePortal(t)
	nav := newTestNavigator(t, portal, Credentials{portal.username, portal.password})
	ctx := context.Background()

	assert.Equal(t, StateStart, nav.State())

	require.NoError(t, nav.Step(ctx))
	assert.Equal(t, StateLoggingIn, nav.State())
	assert.Equal(t, 0, portal.loginCount())

	require.NoError(t, nav.Step(ctx))
	assert.Equal(t, StateMainInfo, nav.State())
	assert.Equal(t, 1, portal.loginCount())

	require.NoError(t, nav.Step(ctx))
	assert.Equal(t, StateSubPortal, nav.State())

	records, err := nav.FetchPeriod(ctx, Period{2021, time.March}, Date(2021, 3, 30), Date(2021, 4, 2))
	require.NoError(t, err)
	assert.Equal(t, StateFetching, nav.State())
	require.Len(t, records, 2)
	assert.Equal(t, "2021-03-30", records[0].Key())
	assert.Equal(t, 300, records[0].Liters)
	assert.Equal(t, 310, records[1].Liters)

	require.NoError(t, nav.Finish())
	assert.Equal(t, StateDone, nav.State())
	assert.NoError(t, nav.Err())
}

func TestNavigatorFetchBeforeLogin(t *testing.T) {
	portal := newFakePortal(t)
	nav := newTestNavigator(t, portal, Credentials{portal.username, portal.password})

	_, err := nav.FetchPeriod(context.Background(), Period{2021, time.March}, Date(2021, 3, 1), Date(2021, 3, 31))
	require.Error(t, err)
	assert.Equal(t, StateStart, nav.State())
	assert.Empty(t, portal.requestedPeriods())
}

func TestNavigatorBadCredentials(t *testing.T) {
	portal := newFakePortal(t)
	nav := newTestNavigator(t, portal, Credentials{portal.username, "wrong"})

	err := nav.Login(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, 200, authErr.StatusCode)
	assert.Contains(t, authErr.Body, "Invalid e-mail or password")

	assert.Equal(t, StateFailed, nav.State())
	assert.Equal(t, 1, portal.loginCount(), "login must not be retried")

	// The failure sticks
	assert.Same(t, err, nav.Step(context.Background()))
	_, fetchErr := nav.FetchPeriod(context.Background(), Period{2021, time.March}, Date(2021, 3, 1), Date(2021, 3, 31))
	assert.Same(t, err, fetchErr)
}

func TestNavigatorMissingSSOLink(t *testing.T) {
	portal := newFakePortal(t)
	portal.omitSSOLink = true
	nav := newTestNavigator(t, portal, Credentials{portal.username, portal.password})

	err := nav.Login(context.Background())
	require.Error(t, err)

	var navErr *NavigationError
	require.True(t, errors.As(err, &navErr))
	assert.Contains(t, navErr.Page, "/Userdata/MainInfo.aspx")
	assert.Equal(t, StateFailed, nav.State())
}

func TestNavigatorMissingLoginForm(t *testing.T) {
	portal := newFakePortal(t)
	fetcher, err := NewHTTPFetcher(nil)
	require.NoError(t, err)
	nav := NewNavigator(fetcher, Credentials{"u", "p"}, portal.server.URL+"/eMIS.SE_BVK/Default.aspx", nil)

	err = nav.Step(context.Background())
	var navErr *NavigationError
	require.True(t, errors.As(err, &navErr))
	assert.Contains(t, navErr.Element, "login form")
}

func TestNavigatorHTTPErrorStatus(t *testing.T) {
	portal := newFakePortal(t)
	fetcher, err := NewHTTPFetcher(nil)
	require.NoError(t, err)
	nav := NewNavigator(fetcher, Credentials{"u", "p"}, portal.server.URL+"/missing", nil)

	err = nav.Login(context.Background())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 404, statusErr.StatusCode)
}

func TestNavigatorMalformedPeriod(t *testing.T) {
	portal := newFakePortal(t)
	bad := Period{2021, time.February}
	portal.malformed[bad] = true
	nav := newTestNavigator(t, portal, Credentials{portal.username, portal.password})
	ctx := context.Background()

	require.NoError(t, nav.Login(ctx))

	_, err := nav.FetchPeriod(ctx, bad, Date(2021, 2, 1), Date(2021, 2, 28))
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, bad, fetchErr.Period)
	assert.True(t, errors.Is(err, ErrMalformedDate))
	assert.Equal(t, StateFailed, nav.State())
	assert.Error(t, nav.Finish())
}

func TestLoginRedirect(t *testing.T) {
	target, err := loginRedirect(&Response{
		StatusCode: 200,
		URL:        "https://zis.bvk.cz/Default.aspx",
		Body:       "1|#||4|26|pageRedirect||%2fUserdata%2fMainInfo.aspx|",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://zis.bvk.cz/Userdata/MainInfo.aspx", target)

	// Without a target field the account page is assumed
	target, err = loginRedirect(&Response{URL: "https://zis.bvk.cz/", Body: "1|#||4|26|pageRedirect"})
	require.NoError(t, err)
	assert.Equal(t, "https://zis.bvk.cz/Userdata/MainInfo.aspx", target)

	_, err = loginRedirect(&Response{StatusCode: 500, URL: "https://zis.bvk.cz/", Body: "Server Error"})
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, 500, authErr.StatusCode)
	assert.Equal(t, "Server Error", authErr.Body)
}

func TestPeriodURL(t *testing.T) {
	portal, err := url.Parse("https://www.suezsmartsolutions.com/eMIS.SE_BVK/Default.aspx?ticket=1")
	require.NoError(t, err)

	got, err := url.Parse(periodURL(portal, Period{2020, time.August}))
	require.NoError(t, err)

	assert.Equal(t, "www.suezsmartsolutions.com", got.Host)
	assert.Equal(t, "/eMIS.SE_BVK/Site_Energie.aspx", got.Path)
	assert.Equal(t, url.Values{
		"Affichage": {"ConsoJour"},
		"Annee":     {"2020"},
		"Mois":      {"8"},
	}, got.Query())
}
