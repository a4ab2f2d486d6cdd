package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	logx "announcerd/pkg/logx"
)

// Post is a read-only snapshot of a content item. The only field announcerd
// ever mutates remotely is ApprovalRequested (via RequestAnnouncement).
type Post struct {
	ID                string
	Author            string
	Title             string
	Content           string
	NumImages         int
	Date              time.Time
	Approved          bool
	Pinned            bool
	Notified          bool
	ApprovalRequested bool
}

// Posts is the content gateway.
type Posts struct {
	client
}

type PostsConfig struct {
	BaseURL string
	Timeout time.Duration
}

func NewPosts(cfg PostsConfig, log logx.Logger) *Posts {
	return &Posts{client: newClient(cfg.BaseURL, cfg.Timeout, log)}
}

type postJSON struct {
	ID                *string  `json:"id"`
	Author            string   `json:"author"`
	Title             string   `json:"title"`
	Content           string   `json:"content"`
	NumImages         int      `json:"numImages"`
	Date              *apiTime `json:"date"`
	Approved          bool     `json:"approved"`
	Pinned            bool     `json:"pinned"`
	Notified          bool     `json:"notified"`
	ApprovalRequested bool     `json:"approvalRequested"`
}

func (p postJSON) toPost(op string) (Post, error) {
	if p.ID == nil {
		return Post{}, invalidErr(op, fmt.Errorf("post missing id"))
	}
	out := Post{
		ID:                *p.ID,
		Author:            p.Author,
		Title:             p.Title,
		Content:           p.Content,
		NumImages:         p.NumImages,
		Approved:          p.Approved,
		Pinned:            p.Pinned,
		Notified:          p.Notified,
		ApprovalRequested: p.ApprovalRequested,
	}
	if p.Date != nil {
		out.Date = p.Date.Time
	}
	return out, nil
}

// ListPending returns the current snapshot of unapproved posts.
func (g *Posts) ListPending(ctx context.Context) ([]Post, error) {
	const op = "posts.list_pending"

	var body struct {
		Posts *[]postJSON `json:"posts"`
	}
	q := url.Values{"approved": {"false"}}
	if err := g.doJSON(ctx, op, http.MethodGet, "/v1/posts", q, nil, &body); err != nil {
		return nil, err
	}
	if body.Posts == nil {
		return nil, invalidErr(op, fmt.Errorf("response missing %q key", "posts"))
	}

	posts := make([]Post, 0, len(*body.Posts))
	for _, pj := range *body.Posts {
		p, err := pj.toPost(op)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// RequestAnnouncement flags a post as announcement-requested. The call is
// idempotent on the server side; the returned flag is the server-reported
// success value.
func (g *Posts) RequestAnnouncement(ctx context.Context, id string) (bool, error) {
	const op = "posts.request_announcement"

	req := map[string]bool{"approvalRequested": true}
	var body struct {
		Success *bool `json:"success"`
	}
	path := "/v1/posts/" + url.PathEscape(id)
	if err := g.doJSON(ctx, op, http.MethodPut, path, nil, req, &body); err != nil {
		return false, err
	}
	if body.Success == nil {
		return false, invalidErr(op, fmt.Errorf("response missing %q key", "success"))
	}
	return *body.Success, nil
}

// apiTime accepts the handful of ISO-8601 shapes the content source has been
// seen emitting. The original service used a lenient date parser; this is the
// explicit equivalent.
type apiTime struct {
	time.Time
}

var apiTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *apiTime) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range apiTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			t.Time = ts
			return nil
		}
	}
	return fmt.Errorf("unrecognized date %q", s)
}
