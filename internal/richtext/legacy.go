package richtext

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/promptgist/promptgist/internal/document"
)

// LegacyThread is a thread recovered from markup that carried its messages
// inline. Quote is the annotated text.
type LegacyThread struct {
	ThreadID string
	Quote    string
	Messages []document.Message
}

type legacyMessage struct {
	ID         string          `json:"id"`
	Text       string          `json:"text"`
	AuthorID   string          `json:"authorId"`
	AuthorName string          `json:"authorName"`
	Author     string          `json:"author"`
	Timestamp  json.RawMessage `json:"timestamp"`
}

// HasLegacy reports whether content still carries inline thread payloads.
func HasLegacy(content string) bool {
	return strings.Contains(content, LegacyListAttr) || strings.Contains(content, LegacyTextAttr)
}

// Normalize rewrites legacy annotations into plain anchors and returns the
// threads that were embedded in them. newID supplies ids for threads and
// messages the markup did not name. Content without legacy annotations is
// returned unchanged.
func Normalize(content string, newID func() string) (string, []LegacyThread, error) {
	if !HasLegacy(content) {
		return content, nil, nil
	}
	root, err := parse(content)
	if err != nil {
		return "", nil, err
	}
	nodes := collect(root, func(n *html.Node) bool {
		_, list := attr(n, LegacyListAttr)
		_, single := attr(n, LegacyTextAttr)
		return list || single
	})
	if len(nodes) == 0 {
		return content, nil, nil
	}

	var threads []LegacyThread
	for _, n := range nodes {
		msgs := legacyMessages(n, newID)
		id, _ := attr(n, AnchorAttr)
		if id == "" {
			id, _ = attr(n, LegacyIDAttr)
		}
		if !document.ValidID(id) {
			id = newID()
		}
		removeAttrs(n, LegacyListAttr, LegacyTextAttr, LegacyTimeAttr, LegacyIDAttr, AnchorAttr)
		if len(msgs) == 0 {
			// Nothing left to anchor; keep the text only.
			if n.DataAtom == atom.Span && len(n.Attr) == 0 {
				unwrap(n)
			}
			continue
		}
		setAttr(n, AnchorAttr, id)
		threads = append(threads, LegacyThread{ThreadID: id, Quote: textOf(n), Messages: msgs})
	}

	out, err := render(root)
	if err != nil {
		return "", nil, err
	}
	return out, threads, nil
}

func legacyMessages(n *html.Node, newID func() string) []document.Message {
	var out []document.Message
	if raw, ok := attr(n, LegacyListAttr); ok {
		var list []legacyMessage
		if err := json.Unmarshal([]byte(raw), &list); err == nil {
			for _, lm := range list {
				m := document.Message{
					ID:         lm.ID,
					Text:       lm.Text,
					AuthorID:   lm.AuthorID,
					AuthorName: lm.AuthorName,
					Timestamp:  rawTimestamp(lm.Timestamp),
				}
				if m.AuthorName == "" {
					m.AuthorName = lm.Author
				}
				out = appendMessage(out, m, newID)
			}
		}
	}
	if text, ok := attr(n, LegacyTextAttr); ok {
		ts, _ := attr(n, LegacyTimeAttr)
		out = appendMessage(out, document.Message{Text: text, Timestamp: parseTimestamp(ts)}, newID)
	}
	return out
}

func appendMessage(out []document.Message, m document.Message, newID func() string) []document.Message {
	m.Text = strings.TrimSpace(m.Text)
	if m.Text == "" {
		return out
	}
	if !document.ValidID(m.ID) {
		m.ID = newID()
	}
	if m.AuthorName == "" {
		m.AuthorName = document.DefaultAuthorName
	}
	return append(out, m)
}

func rawTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseTimestamp(s)
	}
	return parseTimestamp(string(raw))
}

// parseTimestamp accepts epoch milliseconds or RFC 3339. Anything else is
// the zero time.
func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.UnixMilli(int64(f)).UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
