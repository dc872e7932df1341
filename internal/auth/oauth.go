package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const stateCookie = "oauth_state"

// Google runs the authorization-code login flow and turns a successful
// callback into a session cookie.
type Google struct {
	cfg           *oauth2.Config
	allowedDomain string
	signingKey    string
	sessionTTL    time.Duration

	// UserinfoURL is overridable for tests.
	UserinfoURL string
}

// NewGoogle configures the login flow. allowedDomain restricts which email
// domain may log in; when empty every login is denied.
func NewGoogle(clientID, clientSecret, redirectURL, allowedDomain, signingKey string, sessionTTL time.Duration) *Google {
	return &Google{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		allowedDomain: allowedDomain,
		signingKey:    signingKey,
		sessionTTL:    sessionTTL,
		UserinfoURL:   "https://www.googleapis.com/oauth2/v2/userinfo",
	}
}

// AllowedEmail reports whether an authenticated email may use the system.
// An unset domain denies everyone rather than letting anyone in.
func (g *Google) AllowedEmail(email string) bool {
	return g.allowedDomain != "" && email != "" && strings.HasSuffix(email, g.allowedDomain)
}

// Login redirects the browser to Google's consent screen.
func (g *Google) Login(c *gin.Context) {
	state := randomState()
	c.SetCookie(stateCookie, state, 300, "/", "", false, true)
	c.Redirect(http.StatusTemporaryRedirect, g.cfg.AuthCodeURL(state))
}

// Callback finishes the flow: state check, code exchange, userinfo fetch,
// domain check, session cookie.
func (g *Google) Callback(c *gin.Context) {
	state, err := c.Cookie(stateCookie)
	if err != nil || c.Query("state") != state {
		c.Redirect(http.StatusFound, "/login")
		return
	}
	c.SetCookie(stateCookie, "", -1, "/", "", false, true)

	token, err := g.cfg.Exchange(c.Request.Context(), c.Query("code"))
	if err != nil {
		log.Printf("oauth code exchange failed: %v", err)
		c.Redirect(http.StatusFound, "/login")
		return
	}

	email, name, err := g.fetchUserinfo(c, token)
	if err != nil {
		log.Printf("oauth userinfo fetch failed: %v", err)
		c.Redirect(http.StatusFound, "/login")
		return
	}

	if !g.AllowedEmail(email) {
		c.HTML(http.StatusForbidden, "acesso_negado.html", gin.H{"email": email})
		return
	}

	session, err := IssueSession(email, name, g.signingKey, g.sessionTTL)
	if err != nil {
		log.Printf("session issue failed: %v", err)
		c.Redirect(http.StatusFound, "/login")
		return
	}
	c.SetCookie(SessionCookie, session, int(g.sessionTTL.Seconds()), "/", "", false, true)
	c.Redirect(http.StatusFound, "/terminal")
}

// Logout clears the session cookie.
func (g *Google) Logout(c *gin.Context) {
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
	c.Redirect(http.StatusFound, "/login")
}

func (g *Google) fetchUserinfo(c *gin.Context, token *oauth2.Token) (email, name string, err error) {
	client := g.cfg.Client(c.Request.Context(), token)
	resp, err := client.Get(g.UserinfoURL)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("userinfo returned %s", resp.Status)
	}

	var info struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", "", err
	}
	return info.Email, info.Name, nil
}

func randomState() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}
