package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"mediadedup/internal/models"
)

// Page scrapes the images of one HTML page. An <img> wrapped in a link to
// another image gets that target as its full resolution channel.
type Page struct {
	pageURL   string
	source    string
	userAgent string
	client    *http.Client
}

// NewPage creates a page connector. source defaults to the page host.
func NewPage(pageURL, source string, client *http.Client) *Page {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if source == "" {
		if u, err := url.Parse(pageURL); err == nil {
			source = u.Host
		}
	}
	return &Page{pageURL: pageURL, source: source, userAgent: "mediadedup/1.0", client: client}
}

func (p *Page) Name() string {
	return p.source
}

// Scan fetches the page and returns one record per distinct image.
func (p *Page) Scan(ctx context.Context) ([]*models.MediaRecord, error) {
	base, err := url.Parse(p.pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	doc, err := p.fetchDocument(ctx)
	if err != nil {
		return nil, err
	}
	return p.extract(doc, base), nil
}

func (p *Page) fetchDocument(ctx context.Context) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", p.pageURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (p *Page) extract(doc *goquery.Document, base *url.URL) []*models.MediaRecord {
	var records []*models.MediaRecord
	seen := make(map[string]bool)

	add := func(primary, fullRes string) {
		if primary == "" || seen[primary] {
			return
		}
		seen[primary] = true
		category := models.CategoryFromPath(pathOf(primary))
		if category == models.CategoryUnknown {
			category = models.CategoryImage
		}
		m := newRecord(p.source, primary, category)
		if fullRes != "" && fullRes != primary {
			m.Metadata(models.ChannelFullRes).AssetLocation = fullRes
		}
		records = append(records, m)
	}

	doc.Find(`meta[property="og:image"]`).Each(func(_ int, s *goquery.Selection) {
		content, _ := s.Attr("content")
		add(resolve(base, content), "")
	})

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok {
			return
		}
		var fullRes string
		if href, ok := img.Closest("a").Attr("href"); ok {
			target := resolve(base, href)
			if models.CategoryFromPath(pathOf(target)) == models.CategoryImage {
				fullRes = target
			}
		}
		add(resolve(base, src), fullRes)
	})

	return records
}

// resolve makes ref absolute against base. Data URIs and unparsable
// references resolve to "".
func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

func pathOf(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return location
	}
	return u.Path
}
