package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/homework_helper/internal/pkg/response"
	"github.com/qs3c/homework_helper/internal/pkg/validate"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// bindError 参数校验失败
func bindError(c *gin.Context, err error) {
	response.ParamError(c, validate.Message(err))
}

// pagination 解析分页参数
func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	return page, pageSize
}

// paramID 解析路径中的数字 ID
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "invalid "+name)
		return 0, false
	}
	return id, true
}
