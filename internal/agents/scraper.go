package agents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	maxReferenceURLs   = 3
	maxPageBytes       = 1 << 20
	minSectionLen      = 100
	maxSectionLen      = 500
	maxSectionsPerPage = 5
	minSnippetLen      = 20
	maxSnippetLen      = 2000
)

// Extract is the usable content pulled from one reference page.
type Extract struct {
	URL      string
	Title    string
	Sections []string // prose from article/main/section nodes
	Snippets []string // pre/code blocks
}

// Render flattens the extract into prompt-ready text.
func (e Extract) Render() string {
	var sb strings.Builder
	sb.WriteString(e.URL)
	sb.WriteString("\n")
	if e.Title != "" {
		sb.WriteString(e.Title)
		sb.WriteString("\n")
	}
	for _, s := range e.Sections {
		sb.WriteString("\n")
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	for _, c := range e.Snippets {
		sb.WriteString("\n```\n")
		sb.WriteString(c)
		sb.WriteString("\n```\n")
	}
	return sb.String()
}

// Scraper fetches reference pages for the researcher. Social domains are
// noise and stay blocked; loopback and private hosts are refused so a plan
// cannot point the researcher at internal services.
type Scraper struct {
	httpClient     *http.Client
	userAgent      string
	blockedDomains []string
	maxBodyBytes   int64
	allowPrivate   bool // tests flip this to fetch from httptest servers
}

// NewScraper returns a scraper with the default fetch policy.
func NewScraper() *Scraper {
	return &Scraper{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		userAgent:  "symphony/1.0 (research agent)",
		blockedDomains: []string{
			"facebook.com", "twitter.com", "instagram.com",
			"linkedin.com", "tiktok.com",
		},
		maxBodyBytes: maxPageBytes,
	}
}

func (s *Scraper) allowed(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("url has no host")
	}
	for _, blocked := range s.blockedDomains {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return fmt.Errorf("domain %s is blocked", host)
		}
	}
	if s.allowPrivate {
		return nil
	}
	if host == "localhost" || strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return fmt.Errorf("refusing local host %s", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("refusing non-public address %s", host)
		}
	}
	return nil
}

// Fetch downloads one page and extracts its title, relevant prose sections,
// and code snippets. Keywords filter prose sections; an empty keyword list
// keeps everything. Bodies are capped at 1MB.
func (s *Scraper) Fetch(ctx context.Context, rawURL string, keywords []string) (Extract, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Extract{}, fmt.Errorf("invalid url: %w", err)
	}
	if err := s.allowed(u); err != nil {
		return Extract{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Extract{}, err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Extract{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Extract{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodyBytes))
	if err != nil {
		return Extract{}, err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return Extract{}, fmt.Errorf("parse failed: %w", err)
	}

	ex := Extract{URL: u.String(), Title: pageTitle(doc)}
	collectContent(doc, keywords, &ex)
	if len(ex.Sections) == 0 && len(ex.Snippets) == 0 {
		return Extract{}, fmt.Errorf("no usable content")
	}
	return ex, nil
}

// collectContent walks the DOM gathering prose sections and code snippets.
// Prose under 100 chars is boilerplate and skipped; snippets outside the
// 20..2000 range are noise.
func collectContent(n *html.Node, keywords []string, ex *Extract) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "nav", "footer", "header":
			return
		case "article", "main", "section":
			if len(ex.Sections) < maxSectionsPerPage {
				text := textContent(n)
				if len(text) >= minSectionLen && containsAnyKeyword(text, keywords) && !containsSection(ex.Sections, text) {
					ex.Sections = append(ex.Sections, truncateText(text, maxSectionLen))
				}
			}
		case "pre", "code":
			text := textContent(n)
			if len(text) > minSnippetLen && len(text) < maxSnippetLen {
				ex.Snippets = append(ex.Snippets, text)
			}
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectContent(c, keywords, ex)
	}
}

// containsSection reports whether text duplicates an already kept section.
// Nested article/section nodes yield the same prose twice.
func containsSection(kept []string, text string) bool {
	probe := truncateText(text, maxSectionLen)
	for _, k := range kept {
		if k == probe || strings.HasPrefix(k, probe) || strings.HasPrefix(probe, strings.TrimSuffix(k, "...")) {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func pageTitle(doc *html.Node) string {
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

func containsAnyKeyword(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// truncateText cuts at a rune boundary and marks the cut.
func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut] + "..."
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// ExtractURLs pulls up to max http(s) URLs out of free text in order of
// appearance, dropping duplicates and trailing punctuation.
func ExtractURLs(text string, max int) []string {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	urls := make([]string, 0, max)
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?")
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		urls = append(urls, m)
		if len(urls) >= max {
			break
		}
	}
	return urls
}
