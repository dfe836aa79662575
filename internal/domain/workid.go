package domain

import (
	"regexp"
	"strings"
)

// WorkID 是作品识别号（文档 <num> 的值，规范化后形如 CAWD-895），也是库内主键。
type WorkID string

var workIDRE = regexp.MustCompile(`^[A-Z]{2,6}-[0-9]{2,5}$`)

// ParseWorkID 校验并解析规范化后的识别号。
// 输入必须已经是大写 + '-' 分隔的形态。
func ParseWorkID(s string) (WorkID, bool) {
	s = strings.TrimSpace(s)
	if !workIDRE.MatchString(s) {
		return "", false
	}
	return WorkID(s), true
}
