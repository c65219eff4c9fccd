package trace

// 短链相关的 span attribute key。
const (
	LinkCode       = "krat.link.code"
	LinkOwnerID    = "krat.link.owner_id"
	LinkClickCount = "krat.link.click_count"
	LinkClickLimit = "krat.link.click_limit"
	LinkOutcome    = "krat.link.outcome"
)
