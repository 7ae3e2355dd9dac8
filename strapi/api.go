package strapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/MrEthical07/goSession/model"
)

func deep() url.Values {
	return url.Values{"populate": {"deep"}}
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a token and the fully populated user.
func (c *Client) Login(ctx context.Context, identifier, password string) (model.AuthResponse, error) {
	var out model.AuthResponse
	err := c.do(ctx, http.MethodPost, authPathPrefix, deep(), loginRequest{Identifier: identifier, Password: password}, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, username, email, password string) (model.AuthResponse, error) {
	return Post[registerRequest, model.AuthResponse](ctx, c, authPathPrefix+"/register", registerRequest{
		Username: username,
		Email:    email,
		Password: password,
	})
}

// FetchCurrentUser loads the user owning the bearer token.
func (c *Client) FetchCurrentUser(ctx context.Context) (*model.User, error) {
	u, err := FetchDirect[model.User](ctx, c, "/api/users/me", deep())
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) FetchCourse(ctx context.Context, courseID int) (model.Course, error) {
	return FetchSingle[model.Course](ctx, c, fmt.Sprintf("/api/courses/%d", courseID), deep())
}

func categoryQuery(categoryID int) url.Values {
	return url.Values{
		"filters[coursecategory][id][$eq]": {strconv.Itoa(categoryID)},
		"populate":                         {"deep"},
		"sort[0]":                          {"order:asc"},
		"sort[1]":                          {"title:asc"},
	}
}

// FetchCoursesForCategory returns one page of courses in a category, ordered
// by the author-assigned order and then by title.
func (c *Client) FetchCoursesForCategory(ctx context.Context, categoryID, page, pageSize int) (model.ListResponse[model.Course], error) {
	return FetchPage[model.Course](ctx, c, "/api/courses", categoryQuery(categoryID), page, pageSize)
}

// FetchAllCoursesForCategory walks every page of a category.
func (c *Client) FetchAllCoursesForCategory(ctx context.Context, categoryID int) ([]model.Course, error) {
	return FetchAllPages[model.Course](ctx, c, "/api/courses", categoryQuery(categoryID))
}
