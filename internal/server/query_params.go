package server

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/parkvoucher/pkg/db/pagination"
)

// flexInt accepts a JSON number or a numeric string. Form posts from the
// admin page send counts as strings.
type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var raw string
	if len(trimmed) > 0 && trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
	} else {
		raw = string(trimmed)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return ErrInvalidRequest
	}
	f.Value = value
	f.Set = true
	return nil
}

func (f flexInt) Ptr() *int {
	if !f.Set {
		return nil
	}
	value := f.Value
	return &value
}

func bindPagination(c *gin.Context) (pagination.Pagination, error) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		return pagination.Pagination{}, invalidRequestError()
	}
	return page, nil
}
