package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"asphalt/pkg/asset"
	"asphalt/pkg/config"
	"asphalt/pkg/types"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
)

const Description = "Uploaded by Asphalt"

type uploadRequest struct {
	AssetType       string          `json:"assetType"`
	DisplayName     string          `json:"displayName"`
	Description     string          `json:"description"`
	CreationContext creationContext `json:"creationContext"`
}

type creationContext struct {
	Creator       creator `json:"creator"`
	ExpectedPrice *uint64 `json:"expectedPrice,omitempty"`
}

type creator struct {
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
}

type operation struct {
	Done        bool   `json:"done"`
	OperationID string `json:"operationId"`
	Response    *struct {
		AssetID string `json:"assetId"`
	} `json:"response"`
}

func newCreator(c config.Creator) creator {
	id := strconv.FormatUint(uint64(c.ID), 10)
	if c.Type == config.CreatorGroup {
		return creator{GroupID: id}
	}
	return creator{UserID: id}
}

// Upload 上传一个已预处理的资源并等待操作完成
func (c *Client) Upload(ctx context.Context, a *asset.Asset) (types.AssetID, error) {
	if c.opts.TestMode {
		return TestAssetID, nil
	}

	// 1. 请求 JSON
	meta, err := json.Marshal(uploadRequest{
		AssetType:   a.Kind.AssetType(),
		DisplayName: a.DisplayName(),
		Description: Description,
		CreationContext: creationContext{
			Creator:       newCreator(c.opts.Creator),
			ExpectedPrice: c.opts.ExpectedPrice,
		},
	})
	if err != nil {
		return 0, err
	}

	// 2. 动画走用户鉴权的接口，用 cookie
	url := c.opts.BaseURL + uploadPath
	animation := a.Kind.IsAnimation()
	if animation {
		url = c.opts.BaseURL + animationUploadPath
	}

	res, err := c.send(ctx, func() (*http.Request, error) {
		body, contentType, err := multipartBody(meta, a)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		c.authorize(req, animation)
		return req, nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upload asset: %w", err)
	}

	var op operation
	if err := json.Unmarshal(res.body, &op); err != nil {
		return 0, fmt.Errorf("invalid upload response: %w", err)
	}
	if op.Done {
		return parseOperation(&op)
	}

	// 3. 轮询操作
	return c.poll(ctx, op.OperationID)
}

func (c *Client) authorize(req *http.Request, animation bool) {
	if animation {
		req.Header.Set("Cookie", ".ROBLOSECURITY="+c.opts.Cookie)
		return
	}
	req.Header.Set("x-api-key", c.opts.APIKey)
}

func multipartBody(meta []byte, a *asset.Asset) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("request", string(meta)); err != nil {
		return nil, "", err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="fileContent"; filename=%q`, a.FileName()))
	h.Set("Content-Type", a.Kind.MimeType())
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(a.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

var errNotDone = errors.New("operation not done")

// poll 最多查询 maxPolls 次，间隔从 PollDelay 开始翻倍
func (c *Client) poll(ctx context.Context, id string) (types.AssetID, error) {
	url := c.opts.BaseURL + operationPath + id

	b := &backoff.ExponentialBackOff{
		InitialInterval: c.opts.PollDelay,
		Multiplier:      2,
		MaxInterval:     c.opts.PollDelay << maxPolls,
	}

	assetID, err := backoff.Retry(ctx, func() (types.AssetID, error) {
		res, err := c.send(ctx, func() (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("x-api-key", c.opts.APIKey)
			return req, nil
		})
		if err != nil {
			return 0, backoff.Permanent(fmt.Errorf("failed to poll operation: %w", err))
		}

		var op operation
		if err := json.Unmarshal(res.body, &op); err != nil {
			return 0, backoff.Permanent(fmt.Errorf("invalid operation response: %w", err))
		}
		if !op.Done {
			return 0, errNotDone
		}
		id, err := parseOperation(&op)
		if err != nil {
			return 0, backoff.Permanent(err)
		}
		return id, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxPolls),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(_ error, next time.Duration) {
			log.WithField("operation", id).Debugf("operation not done yet, next poll in %s", next)
		}),
	)
	if errors.Is(err, errNotDone) {
		return 0, ErrPollExhausted
	}
	return assetID, err
}

func parseOperation(op *operation) (types.AssetID, error) {
	if op.Response == nil {
		return 0, ErrNoResponse
	}
	id, err := strconv.ParseUint(op.Response.AssetID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid asset id %q: %w", op.Response.AssetID, err)
	}
	return types.AssetID(id), nil
}
