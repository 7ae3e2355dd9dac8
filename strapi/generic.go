package strapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/MrEthical07/goSession/model"
)

// AllPagesSize is the page size FetchAllPages requests.
const AllPagesSize = 100

func cloneQuery(q url.Values) url.Values {
	out := make(url.Values, len(q)+2)
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// FetchList GETs a collection endpoint.
func FetchList[T any](ctx context.Context, c *Client, path string, query url.Values) (model.ListResponse[T], error) {
	var out model.ListResponse[T]
	err := c.do(ctx, http.MethodGet, path, query, nil, &out)
	return out, err
}

// FetchPage GETs one page of a collection, replacing any pagination
// parameters already present in query.
func FetchPage[T any](ctx context.Context, c *Client, path string, query url.Values, page, pageSize int) (model.ListResponse[T], error) {
	q := cloneQuery(query)
	q.Set("pagination[page]", strconv.Itoa(page))
	q.Set("pagination[pageSize]", strconv.Itoa(pageSize))
	return FetchList[T](ctx, c, path, q)
}

// FetchAllPages walks every page of a collection in order.
func FetchAllPages[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		resp, err := FetchPage[T](ctx, c, path, query, page, AllPagesSize)
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Data...)
		if resp.Meta == nil || !resp.Meta.Pagination.HasNext() {
			return all, nil
		}
	}
}

// FetchSingle GETs a single-entry endpoint and unwraps its data.
func FetchSingle[T any](ctx context.Context, c *Client, path string, query url.Values) (T, error) {
	var out model.SingleResponse[T]
	if err := c.do(ctx, http.MethodGet, path, query, nil, &out); err != nil {
		var zero T
		return zero, err
	}
	return out.Data, nil
}

// FetchDirect GETs an endpoint whose body is T itself, without an envelope.
func FetchDirect[T any](ctx context.Context, c *Client, path string, query url.Values) (T, error) {
	var out T
	err := c.do(ctx, http.MethodGet, path, query, nil, &out)
	return out, err
}

func Post[Req, Resp any](ctx context.Context, c *Client, path string, body Req) (Resp, error) {
	var out Resp
	err := c.do(ctx, http.MethodPost, path, nil, body, &out)
	return out, err
}
