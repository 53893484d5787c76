package wire

// 错误码，只发给出错的连接，广播永远不带错误
const (
	CodeRoomRequired      = "ROOM_REQUIRED"
	CodeAccessDenied      = "ACCESS_DENIED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeMessageSendFailed = "MESSAGE_SEND_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidEvent      = "INVALID_EVENT"
)

// Error 结构化错误应答 {success:false, message, code}
type Error struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Event Event
func (*Error) Event() string { return EventError }

// NewError NewError
func NewError(code, message string) *Error {
	return &Error{Success: false, Code: code, Message: message}
}
