package model

// Relation is a Strapi single relation: {"data": {...}} or {"data": null}.
type Relation[T any] struct {
	Data *T `json:"data"`
}

// ListResponse is the Strapi envelope for collection endpoints.
type ListResponse[T any] struct {
	Data []T  `json:"data"`
	Meta *Meta `json:"meta,omitempty"`
}

// SingleResponse is the Strapi envelope for single-entry endpoints.
type SingleResponse[T any] struct {
	Data T     `json:"data"`
	Meta *Meta `json:"meta,omitempty"`
}

type Meta struct {
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination is the page-based pagination block Strapi attaches to list
// responses.
type Pagination struct {
	Page      int `json:"page"`
	PageSize  int `json:"pageSize"`
	PageCount int `json:"pageCount"`
	Total     int `json:"total"`
}

// HasNext reports whether another page follows this one.
func (p *Pagination) HasNext() bool {
	return p != nil && p.Page < p.PageCount
}

// ErrorResponse is the body Strapi returns for non-2xx responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Status  int    `json:"status"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// AuthResponse is returned by the local login and registration endpoints.
type AuthResponse struct {
	JWT  string `json:"jwt"`
	User User   `json:"user"`
}
