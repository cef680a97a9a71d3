// Package discourseclient is the one real implementation of
// discourse.Client (§6): a plain net/http-based Discourse REST client
// with exponential-backoff retry on rate limiting.
package discourseclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/canonical/discourse-gatekeeper/go/glog"
	"github.com/canonical/discourse-gatekeeper/go/skerr"
	"github.com/canonical/discourse-gatekeeper/internal/model"
)

// maxRetryElapsed bounds the exponential backoff used on HTTP 429s, per
// §5: "retries with exponential backoff up to ten minutes; the core
// treats that budget as a single blocking call."
const maxRetryElapsed = 10 * time.Minute

// Client implements discourse.Client against a real Discourse server.
type Client struct {
	HTTP       *http.Client
	Host       string
	Username   string
	APIKey     string
	CategoryID int
	// Scheme defaults to "https"; overridable so tests can point this
	// client at a plain-http httptest.Server.
	Scheme string
}

// New builds a Client for host (no scheme, per §6) with the given
// credentials and default category.
func New(host, username, apiKey string, categoryID int) *Client {
	return &Client{
		HTTP:       &http.Client{Timeout: 30 * time.Second},
		Host:       strings.TrimSuffix(host, "/"),
		Username:   username,
		APIKey:     apiKey,
		CategoryID: categoryID,
	}
}

func (c *Client) baseURL() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + c.Host
}

type topicResponse struct {
	TopicID int    `json:"topic_id"`
	URL     string `json:"url"`
}

type retrieveResponse struct {
	PostStream struct {
		Posts []struct {
			Cooked string `json:"cooked"`
			Raw    string `json:"raw"`
		} `json:"posts"`
	} `json:"post_stream"`
}

// CreateTopic posts a new topic in the configured category and returns
// its canonical URL.
func (c *Client) CreateTopic(ctx context.Context, title, content string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"title":    title,
		"raw":      content,
		"category": c.CategoryID,
	})
	if err != nil {
		return "", skerr.Wrap(err)
	}

	var topicID int
	err = c.withRetry(ctx, func() error {
		resp, err := c.doJSON(ctx, http.MethodPost, c.baseURL()+"/posts.json", body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkStatus(resp); err != nil {
			return err
		}
		var tr topicResponse
		if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
			return skerr.Wrap(err)
		}
		topicID = tr.TopicID
		return nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/t/%d", c.baseURL(), topicID), nil
}

// UpdateTopic replaces the first post's raw content of the topic at
// url.
func (c *Client) UpdateTopic(ctx context.Context, url, content string) error {
	postID, err := firstPostID(ctx, c, url)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]interface{}{"post": map[string]string{"raw": content}})
	if err != nil {
		return skerr.Wrap(err)
	}
	return c.withRetry(ctx, func() error {
		resp, err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("%s/posts/%d.json", c.baseURL(), postID), body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return checkStatus(resp)
	})
}

// RetrieveTopic returns the raw markdown of the topic's first post.
func (c *Client) RetrieveTopic(ctx context.Context, url string) (string, error) {
	topicID, err := topicIDFromURL(url)
	if err != nil {
		return "", err
	}
	var content string
	err = c.withRetry(ctx, func() error {
		resp, err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("%s/t/%d.json", c.baseURL(), topicID), nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkStatus(resp); err != nil {
			return err
		}
		var rr retrieveResponse
		if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
			return skerr.Wrap(err)
		}
		if len(rr.PostStream.Posts) == 0 {
			return skerr.Wrap(model.NewServerError("topic has no posts: "+url, nil))
		}
		content = rr.PostStream.Posts[0].Raw
		return nil
	})
	return content, err
}

// DeleteTopic deletes the topic at url.
func (c *Client) DeleteTopic(ctx context.Context, url string) error {
	topicID, err := topicIDFromURL(url)
	if err != nil {
		return err
	}
	return c.withRetry(ctx, func() error {
		resp, err := c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("%s/t/%d.json", c.baseURL(), topicID), nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return checkStatus(resp)
	})
}

// CheckTopicPermission probes read/write access by attempting retrieval
// and inspecting the topic's details.can_edit flag for the current user;
// a 403 or 404 reply reports neither read nor write access.
func (c *Client) CheckTopicPermission(ctx context.Context, url string) (read, write bool, err error) {
	topicID, err := topicIDFromURL(url)
	if err != nil {
		return false, false, err
	}
	var details struct {
		Details struct {
			CanEdit bool `json:"can_edit"`
		} `json:"details"`
	}
	readable := true
	err = c.withRetry(ctx, func() error {
		resp, err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("%s/t/%d.json", c.baseURL(), topicID), nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
			readable = false
			return nil
		}
		if err := checkStatus(resp); err != nil {
			return err
		}
		return json.NewDecoder(resp.Body).Decode(&details)
	})
	if err != nil {
		return false, false, err
	}
	return readable, details.Details.CanEdit, nil
}

// CheckURLIsReachable issues a HEAD request, following redirects, and
// returns the final status code.
func (c *Client) CheckURLIsReachable(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, skerr.Wrap(err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, skerr.Wrap(err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	req.Header.Set("Api-Username", c.Username)
	req.Header.Set("Api-Key", c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return resp, nil
}

// withRetry retries fn with exponential backoff while Discourse answers
// 429, for up to maxRetryElapsed.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxRetryElapsed
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if rl, ok := err.(*rateLimitedError); ok {
			glog.Warningf("discourse rate-limited, retrying: %v", rl)
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))
}

type rateLimitedError struct{ status int }

func (e *rateLimitedError) Error() string { return fmt.Sprintf("rate limited: HTTP %d", e.status) }

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		return &rateLimitedError{status: resp.StatusCode}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return skerr.Wrap(model.NewServerError(fmt.Sprintf("discourse authentication failed: HTTP %d", resp.StatusCode), nil))
	}
	if resp.StatusCode == http.StatusNotFound {
		return skerr.Wrap(model.NewServerError("topic not found", nil))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return skerr.Wrap(model.NewServerError(fmt.Sprintf("discourse returned HTTP %d", resp.StatusCode), nil))
	}
	return nil
}

func topicIDFromURL(url string) (int, error) {
	parts := strings.Split(strings.TrimRight(url, "/"), "/")
	last := parts[len(parts)-1]
	id, err := strconv.Atoi(last)
	if err != nil {
		return 0, skerr.Wrap(model.NewServerError("malformed topic URL: "+url, err))
	}
	return id, nil
}

func firstPostID(ctx context.Context, c *Client, url string) (int, error) {
	topicID, err := topicIDFromURL(url)
	if err != nil {
		return 0, err
	}
	var out struct {
		PostStream struct {
			Stream []int `json:"stream"`
		} `json:"post_stream"`
	}
	err = c.withRetry(ctx, func() error {
		resp, err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("%s/t/%d.json", c.baseURL(), topicID), nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkStatus(resp); err != nil {
			return err
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	})
	if err != nil {
		return 0, err
	}
	if len(out.PostStream.Stream) == 0 {
		return 0, skerr.Wrap(model.NewServerError("topic has no posts: "+url, nil))
	}
	return out.PostStream.Stream[0], nil
}
