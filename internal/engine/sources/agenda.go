package sources

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/anatolykoptev/go_meetmap/internal/engine"
	"github.com/ledongthuc/pdf"
)

// AgendaLinkSelector matches agenda download links on CivicPlus-style meetings pages.
const AgendaLinkSelector = ".agenda-column a[aria-label*='Download PDF Agenda']"

// AgendaDoc is a downloaded agenda reduced to plain text, one entry per page.
type AgendaDoc struct {
	Title     string
	URL       string
	LocalPath string // empty for HTML agendas
	Pages     []string
}

// AgendaLink is an agenda reference found on the meetings page.
type AgendaLink struct {
	Label string
	URL   string
}

// FindAgendaLinks extracts agenda links from a meetings page. Relative hrefs are
// resolved against pageURL; duplicate URLs are dropped.
func FindAgendaLinks(body []byte, pageURL string) ([]AgendaLink, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse meetings page: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	var links []AgendaLink
	seen := make(map[string]bool)
	doc.Find(AgendaLinkSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if seen[abs] {
			return
		}
		seen[abs] = true
		label, _ := s.Attr("aria-label")
		links = append(links, AgendaLink{Label: engine.CollapseSpace(label), URL: abs})
	})
	return links, nil
}

// ScrapeAgendas fetches the meetings page, downloads every linked agenda and
// returns their text. PDFs are kept under staticDir; agendas that fail to
// download or are neither PDF nor HTML are skipped with a warning.
func ScrapeAgendas(ctx context.Context, pageURL, staticDir string) ([]AgendaDoc, error) {
	body, err := engine.FetchPage(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("meetings page: %w", err)
	}
	links, err := FindAgendaLinks(body, pageURL)
	if err != nil {
		return nil, err
	}
	slog.Info("agendas: links found", slog.String("page", pageURL), slog.Int("count", len(links)))

	if staticDir != "" {
		if err := os.MkdirAll(staticDir, 0o750); err != nil {
			return nil, fmt.Errorf("static dir: %w", err)
		}
	}

	var docs []AgendaDoc
	for _, link := range links {
		if ctx.Err() != nil {
			return docs, ctx.Err()
		}
		doc, err := loadAgenda(ctx, link, staticDir)
		if err != nil {
			slog.Warn("agendas: skipped", slog.String("url", link.URL), slog.Any("error", err))
			continue
		}
		engine.IncrAgendasParsed()
		docs = append(docs, *doc)
	}
	return docs, nil
}

func loadAgenda(ctx context.Context, link AgendaLink, staticDir string) (*AgendaDoc, error) {
	d, err := engine.Download(ctx, link.URL)
	if err != nil {
		return nil, err
	}
	out := &AgendaDoc{Title: link.Label, URL: link.URL}

	switch {
	case d.IsPDF():
		if staticDir != "" {
			out.LocalPath = filepath.Join(staticDir, agendaFileName(link.URL))
			if err := os.WriteFile(out.LocalPath, d.Body, 0o640); err != nil {
				return nil, fmt.Errorf("save pdf: %w", err)
			}
		}
		pages, err := PDFPages(d.Body)
		if err != nil {
			return nil, err
		}
		out.Pages = pages
	case d.IsHTML():
		md, err := htmltomarkdown.ConvertString(string(d.Body))
		if err != nil {
			return nil, fmt.Errorf("convert html agenda: %w", err)
		}
		out.Pages = []string{md}
	default:
		return nil, fmt.Errorf("unsupported content type %q", d.ContentType)
	}
	return out, nil
}

// agendaFileName derives a safe local file name from the agenda URL's last path segment.
func agendaFileName(rawURL string) string {
	name := "agenda.pdf"
	if u, err := url.Parse(rawURL); err == nil {
		if b := path.Base(u.Path); b != "" && b != "." && b != "/" {
			name = b
		}
	}
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 {
			return '_'
		}
		return r
	}, name)
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

// PDFPages extracts plain text per page. Pages without text yield empty strings
// so page numbering is preserved.
func PDFPages(data []byte) (pages []string, err error) {
	// The PDF reader panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("read pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			slog.Debug("agendas: page text failed", slog.Int("page", i), slog.Any("error", err))
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}
