package browser

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/WolfverusWasTaken/cheapskate.ai/internal/config"
)

// Driver owns the single browser session used by the whole agent.
type Driver struct {
	cfg     config.BrowserConfig
	market  config.MarketplaceConfig
	browser *rod.Browser
	page    *rodPage
}

// NewDriver creates an unstarted driver.
func NewDriver(cfg config.BrowserConfig, market config.MarketplaceConfig) *Driver {
	return &Driver{cfg: cfg, market: market}
}

// Start launches Chrome and opens the working page on the marketplace.
func (d *Driver) Start(ctx context.Context) error {
	if d.browser != nil {
		if _, err := d.browser.Version(); err == nil {
			return nil
		}
		log.Printf("Stale browser connection detected, relaunching...")
		_ = d.browser.Close()
		d.browser = nil
		d.page = nil
	}

	launch := launcher.New().Headless(d.cfg.IsHeadless())
	if d.cfg.UserDataDir != "" {
		launch = launch.UserDataDir(d.cfg.UserDataDir)
	}
	controlURL, err := launch.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: d.market.BaseURL})
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("open page: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  d.cfg.GetViewportWidth(),
		Height: d.cfg.GetViewportHeight(),
	}); err != nil {
		log.Printf("Set viewport failed: %v", err)
	}

	d.browser = browser
	d.page = &rodPage{
		page:          page,
		navTimeout:    d.cfg.NavigationTimeout(),
		locateTimeout: d.cfg.GetLocateTimeout(),
	}
	log.Printf("Browser connected at %s", controlURL)
	return nil
}

// Page returns the working page. Start must have succeeded.
func (d *Driver) Page() Page {
	return d.page
}

// Login signs into the marketplace when credentials are configured, otherwise
// waits for a manual login with a bounded poll on the session cookie page.
func (d *Driver) Login(ctx context.Context) error {
	if d.page == nil {
		return fmt.Errorf("browser not started")
	}
	loginURL := d.market.BaseURL + "/login"
	if err := d.page.Navigate(ctx, loginURL); err != nil {
		return err
	}
	_ = d.page.WaitStable(ctx)
	DismissOverlay(ctx, d.page)

	if d.market.Username == "" || d.market.Password == "" {
		log.Printf("No credentials configured, waiting for manual login...")
		return d.waitForLogin(ctx, 2*time.Minute)
	}

	userField := First(ctx, d.page, []Strategy{
		{Name: "email input", Selector: `input[type="email"]`},
		{Name: "username input", Selector: `input[name="username"]`},
		{Name: "login input", Selector: `input[name="login"]`},
	})
	if userField.Err != nil {
		return fmt.Errorf("login form: %w", userField.Err)
	}
	if err := d.page.Fill(ctx, userField.Strategy.Selector, d.market.Username); err != nil {
		return err
	}
	if err := d.page.Fill(ctx, `input[type="password"]`, d.market.Password); err != nil {
		return err
	}
	if err := d.page.Click(ctx, `button[type="submit"]`); err != nil {
		return err
	}
	return d.waitForLogin(ctx, 30*time.Second)
}

// waitForLogin polls until the page leaves the login route.
func (d *Driver) waitForLogin(ctx context.Context, budget time.Duration) error {
	deadline := time.Now().Add(budget)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
		url := d.page.URL()
		if url != "" && !containsLoginRoute(url) {
			log.Printf("Logged in, current page: %s", url)
			return nil
		}
	}
	return fmt.Errorf("login not completed within %s", budget)
}

func containsLoginRoute(url string) bool {
	for _, marker := range []string{"/login", "/signin", "/sign-in"} {
		if strings.Contains(url, marker) {
			return true
		}
	}
	return false
}

// Close shuts the browser down.
func (d *Driver) Close() error {
	if d.browser == nil {
		return nil
	}
	err := d.browser.Close()
	d.browser = nil
	d.page = nil
	return err
}
