package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// 入站事件（客户端 -> 服务端）
const (
	EventJoinRoom          = "join-room"
	EventLeaveRoom         = "leave-room"
	EventSendMessage       = "send-message"
	EventEditMessage       = "edit-message"
	EventDeleteMessage     = "delete-message"
	EventTyping            = "typing"
	EventMarkRead          = "mark-read"
	EventInitPrivateChat   = "init-private-chat"
	EventCreatePrivateChat = "create-private-chat"
	EventSetPresence       = "set-presence"
)

// 出站事件（服务端 -> 客户端）
const (
	EventAck                = "ack"
	EventError              = "error"
	EventRoomUpdate         = "room-update"
	EventNewMessage         = "new-message"
	EventMessageUpdated     = "message-updated"
	EventMessageDeleted     = "message-deleted"
	EventTypingStatus       = "typingStatus"
	EventMessagesRead       = "messages-read"
	EventPresenceUpdate     = "presence-update"
	EventPrivateChatCreated = "private-chat-created"
	EventPrivateChatRecv    = "private-chat-received"
)

// Payload is the typed body of a Message. Event reports which wire event
// the payload belongs to.
type Payload interface {
	Event() string
}

// Header is Message Header
type Header struct {
	Event string `json:"event"`
	// Seq 消息序列号，connection 唯一
	Seq uint32 `json:"seq,omitempty"`
	// AckSeq 应答消息序列号
	AckSeq uint32 `json:"ackSeq,omitempty"`
}

// Message Message
type Message struct {
	Header *Header
	Body   Payload
}

type envelope struct {
	Event  string          `json:"event"`
	Seq    uint32          `json:"seq,omitempty"`
	AckSeq uint32          `json:"ackSeq,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Decode Decode reader to Message
func (m *Message) Decode(r io.Reader) error {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return err
	}
	m.Header = &Header{Event: env.Event, Seq: env.Seq, AckSeq: env.AckSeq}
	body, err := MakeEmptyBody(env.Event)
	if err != nil {
		return err
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, body); err != nil {
			return err
		}
	}
	m.Body = body
	return nil
}

// Encode Encode Message to writer
func (m *Message) Encode(w io.Writer) error {
	data, err := json.Marshal(m.Body)
	if err != nil {
		return err
	}
	env := envelope{
		Event:  m.Header.Event,
		Seq:    m.Header.Seq,
		AckSeq: m.Header.AckSeq,
		Data:   data,
	}
	return json.NewEncoder(w).Encode(&env)
}

// Decode Decode bytes to Message
func Decode(payload []byte) (*Message, error) {
	msg := new(Message)
	if err := msg.Decode(bytes.NewReader(payload)); err != nil {
		return nil, err
	}
	return msg, nil
}

// Encode Encode Message to bytes
func Encode(m *Message) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := m.Encode(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MakeEmptyBody 创建一个空的消息体
func MakeEmptyBody(event string) (Payload, error) {
	var body Payload
	switch event {
	case EventJoinRoom:
		body = &JoinRoom{}
	case EventLeaveRoom:
		body = &LeaveRoom{}
	case EventSendMessage:
		body = &SendMessage{}
	case EventEditMessage:
		body = &EditMessage{}
	case EventDeleteMessage:
		body = &DeleteMessage{}
	case EventTyping:
		body = &Typing{}
	case EventMarkRead:
		body = &MarkRead{}
	case EventInitPrivateChat:
		body = &InitPrivateChat{}
	case EventCreatePrivateChat:
		body = &CreatePrivateChat{}
	case EventSetPresence:
		body = &SetPresence{}
	case EventAck:
		body = &Ack{}
	case EventError:
		body = &Error{}
	case EventRoomUpdate:
		body = &RoomUpdate{}
	case EventNewMessage:
		body = &NewMessage{}
	case EventMessageUpdated:
		body = &MessageUpdated{}
	case EventMessageDeleted:
		body = &MessageDeleted{}
	case EventTypingStatus:
		body = &TypingStatus{}
	case EventMessagesRead:
		body = &MessagesRead{}
	case EventPresenceUpdate:
		body = &PresenceUpdate{}
	case EventPrivateChatCreated:
		body = &PrivateChat{event: EventPrivateChatCreated}
	case EventPrivateChatRecv:
		body = &PrivateChat{event: EventPrivateChatRecv}
	default:
		return nil, fmt.Errorf("unhandled event[%s]", event)
	}
	return body, nil
}

// MakeMessage Make a Message from a payload. Seq is left to the caller.
func MakeMessage(body Payload) *Message {
	return &Message{
		Header: &Header{Event: body.Event()},
		Body:   body,
	}
}

// MakeAckMessage Make an ack Message answering seq.
func MakeAckMessage(ackSeq uint32, body Payload) *Message {
	return &Message{
		Header: &Header{Event: body.Event(), AckSeq: ackSeq},
		Body:   body,
	}
}
