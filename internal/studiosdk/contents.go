package studiosdk

import (
	"context"
	"path"
	"strings"

	"github.com/imroc/req/v3"
)

// ContentsAPI reads and writes the file tree of a plugin or a project library.
type ContentsAPI struct {
	client      *req.Client
	contentsURL string
	foldersURL  string
}

var _ FilesystemService = (*ContentsAPI)(nil)

func newContentsAPI(client *req.Client, contentsURL, foldersURL string) *ContentsAPI {
	return &ContentsAPI{
		client:      client,
		contentsURL: contentsURL,
		foldersURL:  foldersURL,
	}
}

// List returns the top level nodes of the tree, with folders expanded.
func (c *ContentsAPI) List(ctx context.Context) (nodes []*FileNode, err error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&nodes).
		Get(c.contentsURL + "/")

	if err := handleAPIError(resp, err, "contents list"); err != nil {
		return nil, err
	}

	return nodes, nil
}

func (c *ContentsAPI) Download(ctx context.Context, filePath string) ([]byte, error) {
	url, err := c.fileURL(c.contentsURL, filePath)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		Get(url)

	if err := handleAPIError(resp, err, "contents download"); err != nil {
		return nil, err
	}

	return resp.Bytes(), nil
}

func (c *ContentsAPI) Upload(ctx context.Context, filePath string, data []byte) error {
	url, err := c.fileURL(c.contentsURL, filePath)
	if err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		SetFileBytes("file", path.Base(filePath), data).
		Post(url)

	return handleAPIError(resp, err, "contents upload")
}

func (c *ContentsAPI) Delete(ctx context.Context, filePath string) error {
	url, err := c.fileURL(c.contentsURL, filePath)
	if err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		Delete(url)

	return handleAPIError(resp, err, "contents delete")
}

func (c *ContentsAPI) CreateFolder(ctx context.Context, folderPath string) error {
	url, err := c.fileURL(c.foldersURL, folderPath)
	if err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		Post(url)

	return handleAPIError(resp, err, "contents create folder")
}

func (c *ContentsAPI) fileURL(base, filePath string) (string, error) {
	for _, segment := range strings.Split(filePath, "/") {
		if segment == ".." {
			return "", ErrInvalidRemoteDir
		}
	}
	clean := path.Clean("/" + filePath)
	if clean == "/" {
		return "", ErrInvalidRemoteDir
	}
	return base + "/" + escapePath(clean), nil
}
