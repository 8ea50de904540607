package scraper

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakePortal serves the pages of the account portal and the consumption
// sub-portal that the navigator walks through
type fakePortal struct {
	server *httptest.Server

	username string
	password string

	omitSSOLink bool
	malformed   map[Period]bool
	expired     map[Period]bool
	liters      func(day time.Time) int

	mu        sync.Mutex
	requested []Period
	logins    int
}

func newFakePortal(t testing.TB) *fakePortal {
	t.Helper()

	p := &fakePortal{
		username:  "jan@example.com",
		password:  "hunter2",
		malformed: map[Period]bool{},
		expired:   map[Period]bool{},
		liters:    func(day time.Time) int { return day.Day() * 10 },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", p.handleRoot)
	mux.HandleFunc("POST /Default.aspx", p.handleLogin)
	mux.HandleFunc("GET /Userdata/MainInfo.aspx", p.handleMainInfo)
	mux.HandleFunc("GET /sso", p.handleSSO)
	mux.HandleFunc("GET /eMIS.SE_BVK/Default.aspx", p.handlePortalHome)
	mux.HandleFunc("GET /eMIS.SE_BVK/Site_Energie.aspx", p.handleConsumption)

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePortal) rootURL() string {
	return p.server.URL + "/"
}

func (p *fakePortal) requestedPeriods() []Period {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Period(nil), p.requested...)
}

func (p *fakePortal) loginCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logins
}

func (p *fakePortal) handleRoot(w http.ResponseWriter, r *http.Request) {
	io.WriteString(w, `<html><body>
<form id="search" action="/search"><input name="q" value="water"></form>
<form id="ctl00_ctl00_lvLoginForm_LoginDialog1_PanelLogin" method="post" action="./Default.aspx">
  <input type="hidden" name="__VIEWSTATE" value="dDwtMTA4">
  <input type="hidden" name="__EVENTVALIDATION" value="ev123">
  <input type="text" name="ctl00$ctl00$lvLoginForm$LoginDialog1$edEmail" value="">
  <input type="password" name="ctl00$ctl00$lvLoginForm$LoginDialog1$edPassword">
  <input type="checkbox" name="ctl00$ctl00$lvLoginForm$LoginDialog1$chkRemember">
  <select name="ctl00$ctl00$lvLoginForm$LoginDialog1$ddlLang"><option value="cs">CZ</option><option value="en" selected>EN</option></select>
  <input type="submit" name="ctl00$ctl00$lvLoginForm$LoginDialog1$btnLogin" value="Login">
  <input type="submit" name="ctl00$ctl00$lvLoginForm$LoginDialog1$btnForgot" value="Forgot">
</form>
</body></html>`)
}

func (p *fakePortal) handleLogin(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.logins++
	p.mu.Unlock()

	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ok := r.Header.Get("X-MicrosoftAjax") == "Delta=true" &&
		r.PostForm.Get("__VIEWSTATE") == "dDwtMTA4" &&
		r.PostForm.Get("__EVENTVALIDATION") == "ev123" &&
		r.PostForm.Get("ctl00$ctl00$lvLoginForm$LoginDialog1$btnLogin") == "Login" &&
		r.PostForm.Get("ctl00$ctl00$lvLoginForm$LoginDialog1$btnForgot") == "" &&
		r.PostForm.Get("ctl00$ctl00$lvLoginForm$LoginDialog1$edEmail") == p.username &&
		r.PostForm.Get("ctl00$ctl00$lvLoginForm$LoginDialog1$edPassword") == p.password
	if !ok {
		io.WriteString(w, "1|#||4|38|updatePanel|ctl00_ctl00_upLogin|Invalid e-mail or password|")
		return
	}

	http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: "zis-session", Path: "/"})
	io.WriteString(w, "1|#||4|26|pageRedirect||%2fUserdata%2fMainInfo.aspx|")
}

func (p *fakePortal) handleMainInfo(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie("ASP.NET_SessionId"); err != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	link := `<a id="ctl00_ctl00_ctl00_ContentPlaceHolder1Common_ContentPlaceHolder1_UserDataContentPlaceHolder_btnPortalEmis" href="/sso?ticket=abc">Consumption</a>`
	if p.omitSSOLink {
		link = ""
	}
	fmt.Fprintf(w, `<html><body><h1>Account</h1><a id="logout" href="/logout">Logout</a>%s</body></html>`, link)
}

func (p *fakePortal) handleSSO(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie("ASP.NET_SessionId"); err != nil || r.URL.Query().Get("ticket") != "abc" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "eMIS", Value: "sso-session", Path: "/eMIS.SE_BVK"})
	http.Redirect(w, r, "/eMIS.SE_BVK/Default.aspx", http.StatusFound)
}

func (p *fakePortal) handlePortalHome(w http.ResponseWriter, r *http.Request) {
	io.WriteString(w, `<html><body>eMIS</body></html>`)
}

func (p *fakePortal) handleConsumption(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie("eMIS"); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	query := r.URL.Query()
	year, yerr := strconv.Atoi(query.Get("Annee"))
	month, merr := strconv.Atoi(query.Get("Mois"))
	if query.Get("Affichage") != "ConsoJour" || yerr != nil || merr != nil {
		http.Error(w, "bad query", http.StatusBadRequest)
		return
	}
	period := Period{Year: year, Month: time.Month(month)}

	p.mu.Lock()
	p.requested = append(p.requested, period)
	p.mu.Unlock()

	if p.expired[period] {
		io.WriteString(w, `<html><body><p>Session expired</p></body></html>`)
		return
	}
	io.WriteString(w, consumptionPage(period, p.liters, p.malformed[period]))
}

// consumptionPage renders a month the way the sub-portal does: a header row,
// one row per day and a total row without data cells
func consumptionPage(p Period, liters func(time.Time) int, malformed bool) string {
	var b strings.Builder
	b.WriteString(`<html><body><table id="ctl00_PHZonePrincipale_ctl01_TableTableau">`)
	b.WriteString(`<tr><th>Datum</th><th>Spotřeba [l]</th></tr>`)

	days := Date(p.Year, p.Month+1, 0).Day()
	for d := 1; d <= days; d++ {
		day := Date(p.Year, p.Month, d)
		date := day.Format("01/02/2006")
		if malformed && d == 2 {
			date = day.Format("2006-01-02")
		}
		fmt.Fprintf(&b, "<tr>\n  <td class=\"TableauEnergieLabel\">%s</td>\n  <td class=\"TableauEnergie\"><span>%d</span></td>\n</tr>", date, liters(day))
	}

	b.WriteString(`<tr><td colspan="2">Celkem</td></tr>`)
	b.WriteString(`</table></body></html>`)
	return b.String()
}
