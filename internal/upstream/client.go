package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const (
	lightPath      = "/about/policy/etiquette/"
	userInfoCookie = "userinfo"
	headerStart    = "window.__HEADER__INIT__"
	headerEnd      = "window.__URL_CONFIG__"
)

var (
	requestIDPattern = regexp.MustCompile(`(?i)requestId:\s*"([a-z\d]+)"`)
	userInfoPrefix   = regexp.MustCompile(`^__[^;]+;`)
)

// Session is the per-cycle state scraped from the light page
type Session struct {
	RequestID string
	UserInfo  string
	Username  string
	BodyClass string
}

// Client talks to the site's private message centre endpoints
type Client struct {
	client     *resty.Client
	baseURL    *url.URL
	cookieFile string
	jar        *swappableJar
	limiter    *rate.Limiter
	now        func() time.Time

	mu      sync.RWMutex
	session *Session
}

// NewClient creates a client for baseURL, loading cookies from cookieFile
func NewClient(baseURL, cookieFile string, requestsPerSecond float64) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	jar := &swappableJar{}
	c := &Client{
		client: resty.New().
			SetTimeout(30*time.Second).
			SetHeader("User-Agent", "Deviant-Notify/1.0").
			SetCookieJar(jar),
		baseURL:    parsed,
		cookieFile: cookieFile,
		jar:        jar,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		now:        time.Now,
	}

	if err := c.ReloadCookies(); err != nil {
		return nil, err
	}
	return c, nil
}

// ReloadCookies replaces the jar with the contents of the cookie file. A missing
// file leaves the client signed out.
func (c *Client) ReloadCookies() error {
	fresh, err := cookiejar.New(nil)
	if err != nil {
		return err
	}

	if c.cookieFile != "" {
		data, err := os.ReadFile(c.cookieFile)
		switch {
		case os.IsNotExist(err):
			logrus.Warnf("Cookie file %s does not exist, staying signed out", c.cookieFile)
		case err != nil:
			return fmt.Errorf("failed to read cookie file: %w", err)
		default:
			cookies, err := http.ParseCookie(strings.TrimSpace(string(data)))
			if err != nil {
				return fmt.Errorf("failed to parse cookie file: %w", err)
			}
			fresh.SetCookies(c.baseURL, cookies)
			logrus.Infof("Loaded %d cookies from %s", len(cookies), c.cookieFile)
		}
	}

	c.jar.swap(fresh)
	return nil
}

// CookieFile is the path the client loads cookies from
func (c *Client) CookieFile() string {
	return c.cookieFile
}

// SignedInUser returns the username stored in the userinfo cookie
func (c *Client) SignedInUser() (string, error) {
	_, username, err := c.userInfo()
	return username, err
}

func (c *Client) userInfo() (string, string, error) {
	var value string
	for _, cookie := range c.jar.Cookies(c.baseURL) {
		if cookie.Name == userInfoCookie {
			value = cookie.Value
			break
		}
	}
	if value == "" {
		return "", "", ErrNotSignedIn
	}

	decoded, err := url.PathUnescape(value)
	if err != nil {
		return "", "", ErrNotSignedIn
	}

	var info struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal([]byte(userInfoPrefix.ReplaceAllString(decoded, "")), &info); err != nil || info.Username == "" {
		return "", "", ErrNotSignedIn
	}
	return decoded, info.Username, nil
}

// ResolveSession loads the light page and extracts the request id used to sign
// category requests
func (c *Client) ResolveSession(ctx context.Context) (*Session, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		Get(c.url(lightPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load light page: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("light page returned status %d", resp.StatusCode())
	}

	body := resp.String()
	requestID, err := extractRequestID(body)
	if err != nil {
		return nil, err
	}

	raw, username, err := c.userInfo()
	if err != nil {
		return nil, err
	}

	session := &Session{
		RequestID: requestID,
		UserInfo:  raw,
		Username:  username,
		BodyClass: extractBodyClass(body),
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	return session, nil
}

// FetchCategoryPage performs one signed GET against a category endpoint
func (c *Client) FetchCategoryPage(ctx context.Context, req PageRequest) (*Page, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == nil {
		return nil, ErrNoSession
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	r := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(req.Query).
		SetQueryParam("iid", c.iid(session.RequestID))
	if req.Cursor != "" {
		r.SetQueryParam("cursor", req.Cursor)
	}

	resp, err := r.Get(c.url(req.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", req.Path, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("%s returned status %d", req.Path, resp.StatusCode())
	}

	return ParsePage(resp.Body())
}

// iid is the request id followed by the current time in base 36
func (c *Client) iid(requestID string) string {
	return fmt.Sprintf("%s-%s-1.0", requestID, strconv.FormatInt(c.now().UnixMilli(), 36))
}

func (c *Client) url(path string) string {
	return c.baseURL.String() + path
}

func extractRequestID(page string) (string, error) {
	start := strings.Index(page, headerStart)
	if start == -1 {
		return "", &ParseError{Reason: "could not find start of header init data"}
	}
	start += len(headerStart)
	end := strings.Index(page[start:], headerEnd)
	if end == -1 {
		return "", &ParseError{Reason: "could not find end of header init data"}
	}

	match := requestIDPattern.FindStringSubmatch(page[start : start+end])
	if match == nil {
		return "", &ParseError{Reason: "could not find requestId in header init data"}
	}
	return match[1], nil
}

// extractBodyClass returns the class attribute of the body element, or ""
func extractBodyClass(page string) string {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return ""
	}

	var find func(*html.Node) string
	find = func(n *html.Node) string {
		if n.Type == html.ElementNode && n.Data == "body" {
			for _, attr := range n.Attr {
				if attr.Key == "class" {
					return attr.Val
				}
			}
			return ""
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if class := find(child); class != "" {
				return class
			}
		}
		return ""
	}
	return find(doc)
}

// swappableJar lets the cookie file be reloaded while requests are in flight
type swappableJar struct {
	mu  sync.RWMutex
	jar http.CookieJar
}

var _ http.CookieJar = (*swappableJar)(nil)

func (s *swappableJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.jar != nil {
		s.jar.SetCookies(u, cookies)
	}
}

func (s *swappableJar) Cookies(u *url.URL) []*http.Cookie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.jar == nil {
		return nil
	}
	return s.jar.Cookies(u)
}

func (s *swappableJar) swap(jar http.CookieJar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jar = jar
}
