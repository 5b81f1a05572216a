package apperr

import "errors"

// 统一的业务错误分类
// Handler 层用 errors.Is 映射到 HTTP 状态码，Service 层用 fmt.Errorf("%w: ...") 包装补充上下文
var (
	// ErrConfig 配置缺失 (致命，不重试)
	// 例如：策略要求真实生成但 AI 网关没有配置 API Key
	ErrConfig = errors.New("配置错误")

	// ErrUpstream 上游服务失败 (可恢复，隔离到单次请求)
	// 例如：文本生成接口超时、返回非 2xx
	ErrUpstream = errors.New("上游服务异常")

	// ErrConflict 资源冲突
	// 例如：幂等键重复、组织 Key 已被占用
	ErrConflict = errors.New("资源冲突")

	// ErrNotFound 资源不存在
	ErrNotFound = errors.New("资源不存在")

	// ErrForbidden 权限不足
	ErrForbidden = errors.New("权限不足")

	// ErrRateLimited 触发限流或每日额度用完
	ErrRateLimited = errors.New("请求过于频繁")
)
