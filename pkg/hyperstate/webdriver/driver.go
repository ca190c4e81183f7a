package webdriver

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/diwise/hyperstate/pkg/hyperstate/errors"
)

// Driver loads a page the way a browser would and returns the rendered markup
type Driver interface {
	Render(ctx context.Context, url string) (string, error)
	Close() error
}

type chromeDriver struct {
	browserCtx context.Context
	cancel     func()
}

// NewChromeDriver starts a headless chrome session. Every page is rendered
// in a tab of its own so that concurrent resolutions do not interfere.
func NewChromeDriver(ctx context.Context, options ...chromedp.ExecAllocatorOption) (Driver, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], options...)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// the first run starts the browser
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, errors.NewTransportError("failed to start browser session", err)
	}

	return &chromeDriver{
		browserCtx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}, nil
}

func (d *chromeDriver) Render(ctx context.Context, url string) (string, error) {
	tabCtx, cancel := chromedp.NewContext(d.browserCtx)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var markup string

	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &markup, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errors.NewTransportError(fmt.Sprintf("failed to render %s", url), err)
	}

	return markup, nil
}

func (d *chromeDriver) Close() error {
	d.cancel()
	return nil
}

type httpDriver struct {
	httpClient http.Client
}

// NewHTTPDriver returns a driver that requests the html representation of a
// page without executing any scripts on it.
func NewHTTPDriver() Driver {
	return &httpDriver{
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (d *httpDriver) Render(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %s (%w)", err.Error(), errors.ErrInternal)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", errors.NewTransportError(fmt.Sprintf("failed to request %s", url), err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.NewTransportError("failed to read page", err)
	}

	return string(b), nil
}

func (d *httpDriver) Close() error {
	d.httpClient.CloseIdleConnections()
	return nil
}
