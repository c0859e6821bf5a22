package flow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/CosmicWandererMaker/MFADownloadScript/pkg/logging"
	"github.com/CosmicWandererMaker/MFADownloadScript/pkg/watcher"
)

// Runner owns one browser session and executes the login/MFA/download
// sequence against it. Browser failures surface as errors before the
// watcher is ever invoked, so they can never be misreported as a download
// verdict.
type Runner struct {
	opts    Options
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	log     *logging.Logger
}

// NewRunner validates the options, starts Playwright, and launches a
// Chromium instance wired to write downloads into the configured
// directory. The directory is created on first use if absent.
func NewRunner(opts Options) (*Runner, error) {
	if opts.NavigationTimeout == 0 {
		opts.NavigationTimeout = DefaultNavigationTimeout
	}
	if opts.MFAProbeWait == 0 {
		opts.MFAProbeWait = DefaultMFAProbeWait
	}

	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.DownloadDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	log, _ := logging.NewLogger("flow")

	// Discard driver output so it cannot interleave with operator prompts.
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless:      &opts.Headless,
		DownloadsPath: &opts.DownloadDir,
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	acceptDownloads := true
	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		AcceptDownloads: &acceptDownloads,
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultTimeout(float64(opts.NavigationTimeout.Milliseconds()))

	log.Infof("browser ready (headless=%v, downloads=%s)", opts.Headless, opts.DownloadDir)

	return &Runner{
		opts:    opts,
		pw:      pw,
		browser: browser,
		context: browserCtx,
		page:    page,
		log:     log,
	}, nil
}

func validateOptions(opts Options) error {
	if opts.LoginURL == "" {
		return fmt.Errorf("login URL is required")
	}
	if !strings.HasPrefix(opts.LoginURL, "http://") && !strings.HasPrefix(opts.LoginURL, "https://") {
		return fmt.Errorf("login URL must start with http:// or https://")
	}
	if opts.DownloadDir == "" {
		return fmt.Errorf("download directory is required")
	}
	if opts.NavigationTimeout < 0 || opts.MFAProbeWait < 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// Run executes the full sequence: navigate, authenticate, resolve the
// second-factor branch, trigger the download, and hand off to the watcher.
// The baseline snapshot is taken immediately before the triggering click so
// the watcher can isolate newly created files.
func (r *Runner) Run(ctx context.Context, creds Credentials, sel Selectors, w *watcher.Watcher) (Result, error) {
	r.log.Infof("navigating to login page %s", r.opts.LoginURL)
	if _, err := r.page.Goto(r.opts.LoginURL); err != nil {
		return Result{}, fmt.Errorf("navigation to login page failed: %w", err)
	}

	if err := r.page.Fill(sel.Username, creds.Username); err != nil {
		return Result{}, fmt.Errorf("filling username failed: %w", err)
	}
	if err := r.page.Fill(sel.Password, creds.Password); err != nil {
		return Result{}, fmt.Errorf("filling password failed: %w", err)
	}
	if err := r.page.Click(sel.Submit); err != nil {
		return Result{}, fmt.Errorf("submitting credentials failed: %w", err)
	}

	mfa, err := r.probeMFA(creds.MFACode, sel)
	if err != nil {
		return Result{}, err
	}
	r.log.Infof("second-factor step resolved: %s", mfa)

	if r.opts.DownloadURL != "" {
		r.log.Infof("navigating to download page %s", r.opts.DownloadURL)
		if _, err := r.page.Goto(r.opts.DownloadURL); err != nil {
			return Result{}, fmt.Errorf("navigation to download page failed: %w", err)
		}
	}

	// The baseline must predate the trigger; anything appearing after it
	// is attributed to this download.
	baseline, err := watcher.TakeSnapshot(w.Options().Dir)
	if err != nil {
		return Result{}, fmt.Errorf("baseline snapshot failed: %w", err)
	}

	r.log.Infof("clicking download trigger %q", sel.DownloadTrigger)
	if err := r.page.Click(sel.DownloadTrigger); err != nil {
		return Result{}, fmt.Errorf("download trigger click failed: %w", err)
	}

	verdict, err := w.Watch(ctx, baseline)
	if err != nil {
		return Result{MFA: mfa}, err
	}

	return Result{MFA: mfa, Verdict: verdict}, nil
}

// probeMFA races "second-factor prompt becomes visible" against a bounded
// wait. A timeout is reported as ambiguous rather than silently equated
// with "no second factor required".
func (r *Runner) probeMFA(code string, sel Selectors) (MFAOutcome, error) {
	if sel.MFAInput == "" {
		return MFAAbsentConfirmed, nil
	}

	probeTimeout := float64(r.opts.MFAProbeWait.Milliseconds())
	_, err := r.page.WaitForSelector(sel.MFAInput, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: &probeTimeout,
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			r.log.Warnf("second-factor prompt not visible within %s, proceeding without it", r.opts.MFAProbeWait)
			return MFAAmbiguousTimeout, nil
		}
		return "", fmt.Errorf("waiting for second-factor prompt failed: %w", err)
	}

	if err := r.page.Fill(sel.MFAInput, code); err != nil {
		return "", fmt.Errorf("filling second-factor code failed: %w", err)
	}
	if sel.MFASubmit != "" {
		if err := r.page.Click(sel.MFASubmit); err != nil {
			return "", fmt.Errorf("confirming second-factor code failed: %w", err)
		}
	}

	return MFAPresent, nil
}

// Close tears down the page, context, browser, and Playwright driver.
// Safe to call after a partially failed run.
func (r *Runner) Close() error {
	if r.page != nil {
		_ = r.page.Close() // Ignore errors, continue cleanup
	}
	if r.context != nil {
		_ = r.context.Close() // Ignore errors, continue cleanup
	}
	if r.browser != nil {
		_ = r.browser.Close() // Ignore errors, continue cleanup
	}

	var err error
	if r.pw != nil {
		err = r.pw.Stop()
	}

	if r.log != nil {
		_ = r.log.Close()
	}
	return err
}
