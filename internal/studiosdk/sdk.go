package studiosdk

import (
	"net/url"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/studiosync/internal/version"
)

// Client talks to the public API of one studio instance.
type Client struct {
	client  *req.Client
	baseURL string
	recipes *RecipeAPI
}

var _ Service = (*Client)(nil)

// New creates a client for the instance described by cfg.
func New(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = DefaultRetries
	}

	client := req.C().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetCommonRetryCount(retries).
		SetCommonRetryFixedInterval(500*time.Millisecond).
		SetUserAgent(UserAgent).
		SetCommonHeader(HeaderVersion, version.Version).
		SetCommonBasicAuth(cfg.APIKey, "").
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	return &Client{
		client:  client,
		baseURL: cfg.BaseURL,
		recipes: newRecipeAPI(client),
	}, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Recipes() RecipeService {
	return c.recipes
}

// Plugin returns the contents API of a plugin's source tree.
func (c *Client) Plugin(pluginID string) FilesystemService {
	base := "/public/api/plugins/" + url.PathEscape(pluginID)
	return newContentsAPI(c.client, base+"/contents", base+"/folders")
}

// Library returns the contents API of a project's shared library.
func (c *Client) Library(projectKey string) FilesystemService {
	base := "/public/api/projects/" + url.PathEscape(projectKey) + "/libraries"
	return newContentsAPI(c.client, base+"/contents", base+"/folders")
}

// Close releases idle connections.
func (c *Client) Close() {
	c.client.GetClient().CloseIdleConnections()
}

// escapePath escapes every segment of a slash separated path.
func escapePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
