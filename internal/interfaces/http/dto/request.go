package dto

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// BindLimit 读取 limit 查询参数，非法时使用默认值；上限由服务层裁剪
func BindLimit(c *gin.Context, def int) int {
	return parseIntWithDefault(c.Query("limit"), def)
}

// BindIntQuery 读取整型查询参数
func BindIntQuery(c *gin.Context, name string, def int) int {
	return parseIntWithDefault(c.Query(name), def)
}

// BindID 读取路径中的整型 ID
func BindID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func parseIntWithDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
