package protocol

// --- 客户端请求 Payloads ---

// PingPayload 心跳请求
type PingPayload struct {
	Timestamp int64 `json:"timestamp"` // 客户端时间戳（毫秒）
}

// ActionPayload 提交操作请求
type ActionPayload struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// ReadyPayload 准备状态请求
type ReadyPayload struct {
	Ready bool `json:"ready"`
}

// --- 服务端响应 Payloads ---

// PongPayload 心跳响应
type PongPayload struct {
	ClientTimestamp int64 `json:"client_timestamp"` // 客户端发送的时间戳
	ServerTimestamp int64 `json:"server_timestamp"` // 服务器时间戳（毫秒）
}

// ErrorPayload 错误响应
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
