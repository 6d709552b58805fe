package richtext

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/blacktop/syndicate/internal/logutil"
)

// pages larger than this are truncated before parsing
const maxPreviewBodyBytes = 2 << 20

// fetchLinkEmbed scrapes the page at uri for Open Graph metadata, falling back
// to the <title> element and the generic description meta tag. Returns nil when
// the fetch fails or both title and description come up empty.
func (e *Extractor) fetchLinkEmbed(ctx context.Context, uri string) *LinkEmbed {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil
	}

	resp, err := e.client.Do(req)
	if err != nil {
		logutil.Debugf("link preview fetch failed: url=%s err=%v", uri, err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPreviewBodyBytes))
	if err != nil || len(body) == 0 {
		return nil
	}

	meta := parsePageMeta(body)

	title := strings.TrimSpace(meta.og["og:title"])
	if title == "" {
		title = strings.TrimSpace(meta.title)
	}
	description := strings.TrimSpace(meta.og["og:description"])
	if description == "" {
		description = strings.TrimSpace(meta.description)
	}
	if title == "" && description == "" {
		return nil
	}
	if title == "" {
		title = "Link"
	}

	imageURL := firstNonEmpty(meta.og["og:image"], meta.og["og:image:url"], meta.og["og:image:secure_url"])
	imageURL = strings.TrimSpace(imageURL)
	if imageURL != "" && !strings.HasPrefix(imageURL, "http") {
		imageURL = resolveRelativeURL(uri, imageURL)
	}

	return &LinkEmbed{
		Title:       title,
		Description: description,
		URI:         uri,
		ImageURL:    imageURL,
	}
}

type pageMeta struct {
	og          map[string]string
	title       string
	description string
}

func parsePageMeta(body []byte) pageMeta {
	meta := pageMeta{og: map[string]string{}}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return meta
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				property := attr(n, "property")
				content := attr(n, "content")
				if strings.HasPrefix(property, "og:") {
					meta.og[property] = content
				}
				if attr(n, "name") == "description" && meta.description == "" {
					meta.description = content
				}
			case "title":
				if meta.title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					meta.title = n.FirstChild.Data
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return meta
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// resolveRelativeURL rebases path onto the scheme+host of the fetched page.
func resolveRelativeURL(base, path string) string {
	parsed, err := url.Parse(base)
	if err != nil || parsed.Host == "" {
		return path
	}
	scheme := parsed.Scheme
	if scheme == "" {
		scheme = "https"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return scheme + "://" + parsed.Host + path
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
