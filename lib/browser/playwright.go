package browser

import (
	"fmt"
	"sync"
	"time"

	pw "github.com/playwright-community/playwright-go"
)

var installOnce sync.Once

// playwrightDriver implements Driver on a chromium page.
type playwrightDriver struct {
	pw      *pw.Playwright
	browser pw.Browser
	page    pw.Page
}

func launchPlaywright(opts Options) (Driver, error) {
	var installErr error
	installOnce.Do(func() {
		installErr = pw.Install(&pw.RunOptions{SkipInstallBrowsers: true})
	})
	if installErr != nil {
		return nil, fmt.Errorf("install playwright driver: %w", installErr)
	}

	instance, err := pw.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	b, err := instance.Chromium.Launch(pw.BrowserTypeLaunchOptions{
		Headless: pw.Bool(opts.Headless),
	})
	if err != nil {
		instance.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	page, err := b.NewPage()
	if err != nil {
		b.Close()
		instance.Stop()
		return nil, fmt.Errorf("create page: %w", err)
	}
	page.SetDefaultTimeout(float64(opts.NavTimeout.Milliseconds()))

	return &playwrightDriver{pw: instance, browser: b, page: page}, nil
}

func ms(d time.Duration) *float64 {
	return pw.Float(float64(d.Milliseconds()))
}

func (d *playwrightDriver) Goto(url string, timeout time.Duration) error {
	_, err := d.page.Goto(url, pw.PageGotoOptions{
		WaitUntil: pw.WaitUntilStateNetworkidle,
		Timeout:   ms(timeout),
	})
	return err
}

func (d *playwrightDriver) WaitVisible(selector string, timeout time.Duration) error {
	return d.page.Locator(selector).First().WaitFor(pw.LocatorWaitForOptions{
		State:   pw.WaitForSelectorStateVisible,
		Timeout: ms(timeout),
	})
}

func (d *playwrightDriver) Fill(selector, value string) error {
	return d.page.Locator(selector).First().Fill(value)
}

func (d *playwrightDriver) TypeSlowly(selector, value string, keyDelay time.Duration) error {
	loc := d.page.Locator(selector).First()
	if err := loc.Clear(); err != nil {
		return err
	}
	return loc.PressSequentially(value, pw.LocatorPressSequentiallyOptions{
		Delay: pw.Float(float64(keyDelay.Milliseconds())),
	})
}

func (d *playwrightDriver) Click(selector string, timeout time.Duration) error {
	return d.page.Locator(selector).First().Click(pw.LocatorClickOptions{
		Timeout: ms(timeout),
	})
}

func (d *playwrightDriver) Eval(script string) (any, error) {
	return d.page.Evaluate(script)
}

func (d *playwrightDriver) Content() (string, error) {
	return d.page.Content()
}

func (d *playwrightDriver) Close() error {
	var firstErr error
	if d.page != nil {
		if err := d.page.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.browser != nil {
		if err := d.browser.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.pw != nil {
		if err := d.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
