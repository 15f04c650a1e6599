package timesheets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"whosout/internal/extract"
	"whosout/internal/httpx"
)

// ErrLoginFailed is never retried: repeated bad logins can lock the account.
var ErrLoginFailed error = loginError{}

type loginError struct{}

func (loginError) Error() string   { return "timesheets login failed" }
func (loginError) Permanent() bool { return true }

// Paths are relative to the client's base URL.
type Paths struct {
	Login     string `yaml:"login"`
	Schedules string `yaml:"schedules"`
	SelectAll string `yaml:"select_all"`
}

// DefaultPaths are the scheduling application's own pages. The select-all
// update posts back to the schedules page.
func DefaultPaths() Paths {
	return Paths{
		Login:     "/default.cfm?page=Login",
		Schedules: "/default.cfm?page=Schedules",
		SelectAll: "/default.cfm?page=Schedules",
	}
}

func (p Paths) withDefaults() Paths {
	d := DefaultPaths()
	if p.Login == "" {
		p.Login = d.Login
	}
	if p.Schedules == "" {
		p.Schedules = d.Schedules
	}
	if p.SelectAll == "" {
		p.SelectAll = d.SelectAll
	}
	return p
}

type ClientConfig struct {
	BaseURL      string
	Username     string
	Password     string
	Paths        Paths
	Selectors    Selectors
	ArtifactsDir string
	RunID        string
}

// Client is one logged-in session against the scheduling application.
// It implements the pipeline's Page and Session interfaces.
type Client struct {
	cfg  ClientConfig
	http *http.Client
	log  logrus.FieldLogger

	mu       sync.Mutex
	loggedIn bool
	last     *Document
}

func NewClient(cfg ClientConfig, log logrus.FieldLogger) *Client {
	cfg.Paths = cfg.Paths.withDefaults()
	cfg.Selectors = cfg.Selectors.WithDefaults()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{cfg: cfg, http: httpx.NewSessionClient(), log: log}
}

func (c *Client) url(path string) string {
	return c.cfg.BaseURL + path
}

// PrepareSelection logs in if needed, opens the schedules page and applies
// the "select all employees" update.
func (c *Client) PrepareSelection(ctx context.Context) error {
	if err := c.login(ctx); err != nil {
		return err
	}
	if _, err := c.fetchSchedules(ctx); err != nil {
		return err
	}
	form := url.Values{"employees": {"all"}}
	resp, err := c.postForm(ctx, c.url(c.cfg.Paths.SelectAll), form)
	if err != nil {
		return fmt.Errorf("apply selection: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("apply selection: status %d", resp.StatusCode)
	}
	c.log.Debug("select-all update applied")
	return nil
}

func (c *Client) login(ctx context.Context) error {
	c.mu.Lock()
	done := c.loggedIn
	c.mu.Unlock()
	if done {
		return nil
	}
	form := url.Values{
		"username": {c.cfg.Username},
		"password": {c.cfg.Password},
	}
	resp, err := c.postForm(ctx, c.url(c.cfg.Paths.Login), form)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: status %d", ErrLoginFailed, resp.StatusCode)
	}
	doc, err := ParseDocument(resp.Body, c.cfg.Selectors)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.remember(doc)
	if doc.HasLoginForm() {
		return fmt.Errorf("%w: still on login form", ErrLoginFailed)
	}
	c.mu.Lock()
	c.loggedIn = true
	c.mu.Unlock()
	c.log.WithField("user", c.cfg.Username).Info("logged in to timesheets")
	return nil
}

func (c *Client) postForm(ctx context.Context, target string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.http.Do(req)
}

func (c *Client) fetchSchedules(ctx context.Context) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(c.cfg.Paths.Schedules), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch schedules: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch schedules: status %d", resp.StatusCode)
	}
	doc, err := ParseDocument(resp.Body, c.cfg.Selectors)
	if err != nil {
		return nil, err
	}
	c.remember(doc)
	if doc.HasLoginForm() {
		c.mu.Lock()
		c.loggedIn = false
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: session expired", ErrLoginFailed)
	}
	return doc, nil
}

func (c *Client) remember(doc *Document) {
	c.mu.Lock()
	c.last = doc
	c.mu.Unlock()
}

func (c *Client) current(ctx context.Context) (*Document, error) {
	c.mu.Lock()
	doc := c.last
	c.mu.Unlock()
	if doc != nil && !doc.HasLoginForm() {
		return doc, nil
	}
	return c.fetchSchedules(ctx)
}

// SelectionCounterText re-fetches the page so each readiness sample sees
// fresh markup. Header and rows are then read from that same rendering.
func (c *Client) SelectionCounterText(ctx context.Context) (string, error) {
	doc, err := c.fetchSchedules(ctx)
	if err != nil {
		return "", err
	}
	return doc.CounterText(), nil
}

func (c *Client) HeaderLabels(ctx context.Context) ([]string, error) {
	doc, err := c.current(ctx)
	if err != nil {
		return nil, err
	}
	return doc.HeaderLabels(), nil
}

func (c *Client) Rows(ctx context.Context) ([]extract.RowHandle, error) {
	doc, err := c.current(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Rows(), nil
}

// DumpArtifact writes the last page seen to <artifacts_dir>/<run_id>-<stage>.html.
// It returns "" when there is nothing to write.
func (c *Client) DumpArtifact(stage string) (string, error) {
	c.mu.Lock()
	doc := c.last
	c.mu.Unlock()
	if doc == nil || c.cfg.ArtifactsDir == "" {
		return "", nil
	}
	return WriteArtifact(c.cfg.ArtifactsDir, c.cfg.RunID, stage, doc.HTML())
}

func WriteArtifact(dir, runID, stage string, html []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifacts dir: %w", err)
	}
	name := stage + ".html"
	if runID != "" {
		name = runID + "-" + name
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}
