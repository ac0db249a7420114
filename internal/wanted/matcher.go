// Package wanted cross-checks a subject name against a public
// wanted-persons feed. The check is advisory: the matcher never returns
// an error, it degrades to whatever matches were accumulated before the
// feed misbehaved.
package wanted

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"crimesight-go/internal/logger"
	"crimesight-go/internal/types"
)

// DefaultFeedURL is the public FBI wanted list endpoint.
const DefaultFeedURL = "https://api.fbi.gov/wanted/v1/list"

const (
	pageSize = 20
	// maxPages bounds worst-case latency against an unbounded or
	// adversarial feed.
	maxPages = 10
)

type Matcher struct {
	feedURL    string
	httpClient *http.Client
	log        *logrus.Entry
}

func New(feedURL string) *Matcher {
	if feedURL == "" {
		feedURL = DefaultFeedURL
	}
	return &Matcher{
		feedURL:    feedURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        logger.New().WithComponent("wanted"),
	}
}

// feedEntry is the wire shape. Different feed versions expose aliases
// under "aliases" or "subjects"; both are read and normalized away.
type feedEntry struct {
	Title       string   `json:"title"`
	Aliases     []string `json:"aliases"`
	Subjects    []string `json:"subjects"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
}

// feedPage tolerates both "items" and "results" as the array key.
type feedPage struct {
	Items   []feedEntry `json:"items"`
	Results []feedEntry `json:"results"`
}

func (p *feedPage) entries() []feedEntry {
	if p.Items != nil {
		return p.Items
	}
	return p.Results
}

// normalize maps the wire entry to the canonical shape so nothing
// downstream has to know about the field variance.
func (e *feedEntry) normalize() types.WantedEntry {
	aliases := e.Aliases
	if len(aliases) == 0 {
		aliases = e.Subjects
	}
	return types.WantedEntry{
		Title:       e.Title,
		Aliases:     aliases,
		Description: e.Description,
		URL:         e.URL,
	}
}

// matches reports whether name appears case-insensitively in the
// entry's title or aliases.
func matches(entry types.WantedEntry, name string) bool {
	combined := strings.ToLower(entry.Title + " " + strings.Join(entry.Aliases, " "))
	return strings.Contains(combined, strings.ToLower(name))
}

// FindMatches walks the feed page by page and collects entries matching
// name. It stops on a short page or the page cap. Feed trouble is
// logged and ends the walk with the matches gathered so far.
func (m *Matcher) FindMatches(ctx context.Context, name string) []types.WantedEntry {
	found := []types.WantedEntry{}
	if strings.TrimSpace(name) == "" {
		return found
	}

	for page := 1; page <= maxPages; page++ {
		entries, err := m.fetchPage(ctx, page)
		if err != nil {
			m.log.WithError(err).WithField("page", page).Warn("wanted feed unavailable, returning matches gathered so far")
			return found
		}
		for _, raw := range entries {
			entry := raw.normalize()
			if matches(entry, name) {
				found = append(found, entry)
			}
		}
		if len(entries) < pageSize {
			break
		}
	}
	return found
}

func (m *Matcher) fetchPage(ctx context.Context, page int) ([]feedEntry, error) {
	u, err := url.Parse(m.feedURL)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var parsed feedPage
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode feed page: %w", err)
	}
	return parsed.entries(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
