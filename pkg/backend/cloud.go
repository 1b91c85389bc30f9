package backend

import (
	"context"
	"errors"

	"asphalt/pkg/asset"
	"asphalt/pkg/webapi"
)

var (
	ErrAPIKeyRequired = errors.New("an API key is required to use the cloud target (set ASPHALT_API_KEY or --api-key)")
	ErrCookieRequired = errors.New("a cookie is required to upload animations (set ASPHALT_COOKIE or --cookie)")
)

// Cloud 上传到资源服务
type Cloud struct {
	client    *webapi.Client
	hasCookie bool
}

func NewCloud(client *webapi.Client, apiKey, cookie string) (*Cloud, error) {
	if apiKey == "" && !client.TestMode() {
		return nil, ErrAPIKeyRequired
	}
	return &Cloud{client: client, hasCookie: cookie != ""}, nil
}

func (c *Cloud) Sync(ctx context.Context, _ string, a *asset.Asset) (*asset.Ref, error) {
	if a.Kind.IsAnimation() && !c.hasCookie && !c.client.TestMode() {
		return nil, ErrCookieRequired
	}
	id, err := c.client.Upload(ctx, a)
	if err != nil {
		return nil, err
	}
	return asset.CloudRef(id), nil
}
