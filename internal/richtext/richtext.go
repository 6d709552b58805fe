// Package richtext extracts link, mention, and hashtag facets from post text
// and optionally scrapes Open Graph metadata for a link-preview card.
//
// Facet ranges are UTF-8 byte offsets (inclusive start, exclusive end) over
// the source text, as required by the app.bsky.richtext wire format.
package richtext

import (
	"context"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/blacktop/syndicate/internal/logutil"
)

const (
	// Bluesky rejects tags longer than 64 bytes.
	maxTagBytes = 64

	lookupTimeout = 5 * time.Second
)

var (
	tagPattern = regexp.MustCompile(`#[\p{L}\p{N}_]+`)

	// Handle format: label segments of alnum/hyphen, final segment alphabetic
	// (e.g. user.bsky.social).
	mentionPattern = regexp.MustCompile(`@(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?`)

	// URLs must be anchored at the start of text or preceded by whitespace;
	// RE2 has no lookbehind, so the anchor is matched and the capture group
	// carries the URL itself.
	urlPattern = regexp.MustCompile(`(?:^|\s)(https?://(?:www\.)?[-a-zA-Z0-9@:%._+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b(?:[-a-zA-Z0-9()@:%_+.~#?&/=]*[-a-zA-Z0-9@%_+~#/=])?)`)
)

// trailing characters stripped from matched URLs
const urlTrailingPunct = ".,;!?)]"

// FeatureKind discriminates the facet feature variants.
type FeatureKind string

const (
	FeatureLink    FeatureKind = "link"
	FeatureMention FeatureKind = "mention"
	FeatureTag     FeatureKind = "tag"
)

// Facet attaches one feature to a half-open byte range [ByteStart, ByteEnd)
// of the source text. Exactly one of URI, DID, or Tag is set, per Kind.
type Facet struct {
	ByteStart int
	ByteEnd   int
	Kind      FeatureKind
	URI       string
	DID       string
	Tag       string
}

// LinkEmbed is the social-metadata summary of a linked page, used to build a
// link-preview card. Ephemeral; produced once per publish call.
type LinkEmbed struct {
	Title       string
	Description string
	URI         string
	ImageURL    string
}

// Result is the outcome of one extraction pass.
type Result struct {
	Facets    []Facet
	LinkEmbed *LinkEmbed
}

// HandleResolver resolves an @handle to a stable account identifier (DID).
type HandleResolver interface {
	ResolveHandle(ctx context.Context, handle string) (string, error)
}

// Extractor finds facets in post text. The zero value is not usable; construct
// with New.
type Extractor struct {
	resolver HandleResolver
	client   *http.Client
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithHTTPClient overrides the client used for link-preview fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Extractor) { e.client = client }
}

// New constructs an Extractor. The resolver backs mention facets; ancillary
// lookups (resolution, preview fetch) use a short timeout distinct from the
// main provider calls since they are best-effort enrichments.
func New(resolver HandleResolver, opts ...Option) *Extractor {
	e := &Extractor{
		resolver: resolver,
		client:   &http.Client{Timeout: lookupTimeout},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build extracts all facets from text. When fetchLinkEmbed is set and at least
// one link facet was found, the first link's page is scraped for OG metadata.
// Empty input returns an empty result without any network calls.
func (e *Extractor) Build(ctx context.Context, text string, fetchLinkEmbed bool) Result {
	if text == "" {
		return Result{}
	}

	var raw []Facet
	raw = append(raw, e.findTags(text)...)
	raw = append(raw, e.findMentions(ctx, text)...)
	links := e.findLinks(text)
	raw = append(raw, links...)

	result := Result{Facets: sortAndDedupe(raw)}

	if fetchLinkEmbed && len(links) > 0 {
		result.LinkEmbed = e.fetchLinkEmbed(ctx, links[0].URI)
	}

	return result
}

func (e *Extractor) findTags(text string) []Facet {
	var out []Facet
	for _, loc := range tagPattern.FindAllStringIndex(text, -1) {
		match := text[loc[0]:loc[1]]
		value := strings.TrimPrefix(match, "#")
		value = strings.TrimRightFunc(value, unicode.IsPunct)
		if value == "" || len(value) > maxTagBytes {
			continue
		}
		out = append(out, Facet{
			ByteStart: loc[0],
			ByteEnd:   loc[1],
			Kind:      FeatureTag,
			Tag:       value,
		})
	}
	return out
}

func (e *Extractor) findMentions(ctx context.Context, text string) []Facet {
	var out []Facet
	for _, loc := range mentionPattern.FindAllStringIndex(text, -1) {
		handle := strings.TrimPrefix(text[loc[0]:loc[1]], "@")
		did, err := e.resolver.ResolveHandle(ctx, handle)
		if err != nil || did == "" {
			// unresolvable mentions are dropped, never surfaced as a failure
			logutil.Debugf("handle resolution failed: handle=%s err=%v", handle, err)
			continue
		}
		out = append(out, Facet{
			ByteStart: loc[0],
			ByteEnd:   loc[1],
			Kind:      FeatureMention,
			DID:       did,
		})
	}
	return out
}

func (e *Extractor) findLinks(text string) []Facet {
	var out []Facet
	for _, loc := range urlPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[2], loc[3]
		uri := strings.TrimRight(text[start:end], urlTrailingPunct)
		if uri == "" {
			continue
		}
		out = append(out, Facet{
			ByteStart: start,
			ByteEnd:   start + len(uri),
			Kind:      FeatureLink,
			URI:       uri,
		})
	}
	return out
}

// sortAndDedupe stable-sorts candidates by byte start and drops any facet
// overlapping an already-accepted one. Stability across the fixed
// {tags, mentions, links} concatenation keeps the output deterministic:
// earlier-discovered facets win ties.
func sortAndDedupe(raw []Facet) []Facet {
	sort.SliceStable(raw, func(i, j int) bool {
		return raw[i].ByteStart < raw[j].ByteStart
	})

	out := make([]Facet, 0, len(raw))
	lastEnd := -1
	for _, f := range raw {
		if f.ByteStart < lastEnd {
			continue
		}
		out = append(out, f)
		lastEnd = f.ByteEnd
	}
	return out
}
