package hub

import (
	"github.com/vacualtd/vacua-chat/wire"
)

// EngineError 携带错误码的业务错误，应答时映射为 wire 层错误事件
type EngineError struct {
	Code    string
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap Unwrap
func (e *EngineError) Unwrap() error { return e.Err }

var (
	// ErrRoomRequired 事件缺少 roomId
	ErrRoomRequired = &EngineError{Code: wire.CodeRoomRequired, Message: "Room ID is required"}
	// ErrAccessDenied 非成员访问房间
	ErrAccessDenied = &EngineError{Code: wire.CodeAccessDenied, Message: "Access denied to chat room"}
	// ErrRateLimited 令牌桶无余量
	ErrRateLimited = &EngineError{Code: wire.CodeRateLimited, Message: "Rate limit exceeded"}
	// ErrNotFound 房间或消息不存在
	ErrNotFound = &EngineError{Code: wire.CodeNotFound, Message: "Not found"}
)

func sendFailed(err error) *EngineError {
	return &EngineError{Code: wire.CodeMessageSendFailed, Message: "Failed to send message", Err: err}
}

// AsWireError 把任意错误转成 wire 错误事件
func AsWireError(err error) *wire.Error {
	if ee, ok := err.(*EngineError); ok {
		return wire.NewError(ee.Code, ee.Message)
	}
	return wire.NewError(wire.CodeMessageSendFailed, err.Error())
}

// AsAck 把错误转成失败应答
func AsAck(err error, clientID string) *wire.Ack {
	ack := &wire.Ack{Success: false, ClientID: clientID}
	if ee, ok := err.(*EngineError); ok {
		ack.Code = ee.Code
		ack.Message = ee.Message
	} else {
		ack.Code = wire.CodeMessageSendFailed
		ack.Message = err.Error()
	}
	return ack
}
