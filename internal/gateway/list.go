package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"koursa/client/internal/apperror"
)

// GetList GETs path and decodes either a bare JSON array or a paginated {"results": [...]} page.
func GetList[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) ([]T, error) {
	var raw json.RawMessage
	if err := c.Get(ctx, path, &raw, opts...); err != nil {
		return nil, err
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	var page struct {
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, &apperror.Error{
			Kind:    apperror.KindServer,
			Message: apperror.MsgUnexpected,
			Err:     fmt.Errorf("decode %s: %w", path, err),
		}
	}
	return page.Results, nil
}
