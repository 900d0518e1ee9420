package example

import (
	"net/http"
	"time"
)

// Request 出站 HTTP 请求
// @Builder
// @builder(prefix = "With")
type Request struct {
	Method  string
	URL     string
	Headers []string
	Timeout *time.Duration
	Header  http.Header

	// @builder(skip)
	attempts int

	// @builder(rename = "Retry", no_into)
	Retries *int
}

// 未导出类型生成未导出的方法
// @Builder
// @builder(prefix = "with")
type dialOptions struct {
	network   string
	keepAlive time.Duration
}

// Page 泛型分页结果
// @Builder(output=`page_builder.go`)
// @builder(prefix = "With", suffix = "Opt")
type Page[T any] struct {
	Items []T
	Next  string
}
