package models

// TurnStatus tracks a turn through its lifecycle.
type TurnStatus string

const (
	TurnPending      TurnStatus = "pending"
	TurnStreaming    TurnStatus = "streaming"
	TurnAwaitingTool TurnStatus = "awaiting-tool"
	TurnDone         TurnStatus = "done"
	TurnAborted      TurnStatus = "aborted"
	TurnErrored      TurnStatus = "errored"
)

// Terminal reports whether the status ends the turn.
func (s TurnStatus) Terminal() bool {
	switch s {
	case TurnDone, TurnAborted, TurnErrored:
		return true
	default:
		return false
	}
}

// TokenUsage is normalized token accounting independent of provider-specific
// bookkeeping. CacheRead/CacheWrite are zero for providers without caching.
type TokenUsage struct {
	Input      int `json:"input"`
	Output     int `json:"output"`
	CacheRead  int `json:"cache_read,omitempty"`
	CacheWrite int `json:"cache_write,omitempty"`
	Total      int `json:"total"`
}

// Add accumulates usage from another report, recomputing Total.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Input += other.Input
	u.Output += other.Output
	u.CacheRead += other.CacheRead
	u.CacheWrite += other.CacheWrite
	u.Total = u.Input + u.Output + u.CacheRead + u.CacheWrite
}

// Turn is one request/response cycle, created when a prompt is dispatched and
// archived into the session log on a terminal status.
type Turn struct {
	Index        int        `json:"index"`
	Status       TurnStatus `json:"status"`
	Tokens       TokenUsage `json:"tokens"`
	ContextLimit int        `json:"context_limit,omitempty"`
	Messages     []*Message `json:"messages"`
}
