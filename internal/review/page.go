package review

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const maxPageBytes = 4 << 20

// Page is the text of one preview route as sent to the model.
type Page struct {
	Route string `json:"route"`
	Text  string `json:"text"`
}

// pageURL joins base and route and adds a cache-defeating parameter.
func pageURL(base, route string, now time.Time) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/" + strings.TrimLeft(route, "/"))
	if err != nil {
		return "", fmt.Errorf("bad preview url: %w", err)
	}
	q := u.Query()
	q.Set("luce_ts", strconv.FormatInt(now.UnixNano(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func fetchPage(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create preview request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", "luce-reviewer")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("preview http error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("preview returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read preview body: %w", err)
	}
	return string(body), nil
}

// visibleText drops scripts, styles and comments, then collapses whitespace.
func visibleText(markup string) string {
	z := html.NewTokenizer(strings.NewReader(markup))
	var (
		b    strings.Builder
		skip int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			if name, _ := z.TagName(); hidden(name) {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			if name, _ := z.TagName(); hidden(name) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func hidden(tag []byte) bool {
	switch string(tag) {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}

// truncate cuts s to at most max runes.
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
