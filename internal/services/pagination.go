package services

import "github.com/agroc/backend/internal/repository"

// PageRequest is the page/limit pair accepted by every list endpoint.
type PageRequest struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (r *PageRequest) normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Limit < 1 {
		r.Limit = repository.DefaultLimit
	}
}

func (r *PageRequest) findOptions(populate bool) repository.FindOptions {
	r.normalize()
	return repository.FindOptions{
		Skip:     (r.Page - 1) * r.Limit,
		Limit:    r.Limit,
		Populate: populate,
	}
}

// Pagination is returned next to every paged list.
type Pagination struct {
	Current int   `json:"current"`
	Pages   int   `json:"pages"`
	Total   int64 `json:"total"`
}

func (r *PageRequest) pagination(total int64) Pagination {
	r.normalize()
	pages := int((total + int64(r.Limit) - 1) / int64(r.Limit))
	return Pagination{Current: r.Page, Pages: pages, Total: total}
}

// averageOf runs an average pipeline and returns 0 when nothing matched.
func averageOf(rows []repository.AggregateRow, err error) (float64, error) {
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || rows[0].Count == 0 {
		return 0, nil
	}
	return rows[0].Avg, nil
}
