package engine

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// maxDocumentBytes caps agenda downloads; council packets can be large PDFs.
const maxDocumentBytes = 64 << 20

// Document is a downloaded resource with its declared media type.
type Document struct {
	URL         string
	ContentType string // media type without parameters, lowercased
	Body        []byte
}

// IsPDF reports whether the server declared the body as a PDF.
func (d *Document) IsPDF() bool { return d.ContentType == "application/pdf" }

// IsHTML reports whether the server declared the body as HTML.
func (d *Document) IsHTML() bool {
	return d.ContentType == "text/html" || d.ContentType == "application/xhtml+xml"
}

// newFetchClient creates an HTTP client with proper settings for web scraping.
func newFetchClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 15 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			return nil
		},
	}
}

// fetchClient is replaceable in tests.
var fetchClient = newFetchClient()

// Download performs an HTTP GET with exponential backoff and returns the body
// and its media type. Retryable statuses are retried; any other non-200 status is permanent.
func Download(ctx context.Context, rawURL string) (*Document, error) {
	metrics.FetchRequests.Add(1)

	operation := func() (*Document, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", RandomUserAgent())
		req.Header.Set("Accept", "application/pdf,text/html;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Encoding", "gzip")

		resp, err := fetchClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if IsRetryableStatus(resp.StatusCode) {
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}

		body, err := readResponseBody(resp)
		if err != nil {
			return nil, err
		}
		return &Document{
			URL:         rawURL,
			ContentType: mediaType(resp.Header.Get("Content-Type")),
			Body:        body,
		}, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.MaxInterval = 10 * time.Second

	doc, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(3), backoff.WithMaxElapsedTime(60*time.Second))
	if err != nil {
		metrics.FetchErrors.Add(1)
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	return doc, nil
}

// FetchPage fetches an HTML page. The stealth browser client is preferred when
// configured, since municipal CMS hosts often sit behind bot protection.
func FetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
	defer cancel()

	if cfg.BrowserClient != nil {
		headers := ChromeHeaders()
		data, err := RetryDo(ctx, DefaultRetryConfig, func() ([]byte, error) {
			d, _, status, err := cfg.BrowserClient.Do(http.MethodGet, pageURL, headers, nil)
			if err != nil {
				return nil, err
			}
			if IsRetryableStatus(status) {
				return nil, &HTTPStatusError{StatusCode: status}
			}
			if status != http.StatusOK {
				return nil, fmt.Errorf("status %d", status)
			}
			return d, nil
		})
		if err == nil {
			return data, nil
		}
		metrics.FetchErrors.Add(1)
		return nil, fmt.Errorf("browser fetch %s: %w", pageURL, err)
	}

	doc, err := Download(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return doc.Body, nil
}

// readResponseBody reads the response body, handling gzip decompression if needed.
func readResponseBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}
	return io.ReadAll(io.LimitReader(r, maxDocumentBytes))
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mt
}
