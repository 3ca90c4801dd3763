package bot

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/internal/transitions"
)

// DefaultNamespace is the callback prefix used by file status buttons.
const DefaultNamespace = "file"

// Payload is one parsed bot update. The concrete type is one of
// FileStatusCallback, CommandMessage or UnknownPayload.
type Payload interface {
	isPayload()
}

// FileStatusCallback is a status button pressed under a file message.
type FileStatusCallback struct {
	CallbackID string
	Namespace  string
	FileID     uuid.UUID
	Status     string
	Message    *transitions.ChatMessageRef
}

// CommandMessage is a slash command typed into the admin chat.
type CommandMessage struct {
	ChatID    int64
	MessageID int64
	Command   string
	Args      []string
}

// UnknownPayload is anything the bot does not act on. CallbackID is kept so
// the callback can still be answered.
type UnknownPayload struct {
	CallbackID string
	ChatID     int64
	Reason     string
}

func (FileStatusCallback) isPayload() {}
func (CommandMessage) isPayload()     {}
func (UnknownPayload) isPayload()     {}

type update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *message       `json:"message"`
	CallbackQuery *callbackQuery `json:"callback_query"`
}

type callbackQuery struct {
	ID      string   `json:"id"`
	Data    string   `json:"data"`
	Message *message `json:"message"`
}

type message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

// ParsePayload decodes a bot update. Callback namespaces outside the allow-list
// are treated as unknown; with no namespaces given only DefaultNamespace is allowed.
func ParsePayload(raw []byte, namespaces ...string) Payload {
	var u update
	if err := json.Unmarshal(raw, &u); err != nil {
		return UnknownPayload{Reason: "malformed update"}
	}
	if len(namespaces) == 0 {
		namespaces = []string{DefaultNamespace}
	}

	switch {
	case u.CallbackQuery != nil:
		return parseCallback(u.CallbackQuery, namespaces)
	case u.Message != nil:
		return parseCommand(u.Message)
	}
	return UnknownPayload{Reason: "unsupported update"}
}

func parseCallback(q *callbackQuery, namespaces []string) Payload {
	unknown := UnknownPayload{CallbackID: q.ID, Reason: "unsupported callback"}
	if q.Message != nil {
		unknown.ChatID = q.Message.Chat.ID
	}

	parts := strings.Split(q.Data, "_")
	if len(parts) != 4 || parts[1] != "status" {
		return unknown
	}
	if !allowed(parts[0], namespaces) {
		return unknown
	}
	fileID, err := uuid.Parse(parts[2])
	if err != nil {
		unknown.Reason = "invalid file id"
		return unknown
	}
	if parts[3] == "" {
		unknown.Reason = "missing status"
		return unknown
	}

	cb := FileStatusCallback{
		CallbackID: q.ID,
		Namespace:  parts[0],
		FileID:     fileID,
		Status:     parts[3],
	}
	if q.Message != nil {
		cb.Message = &transitions.ChatMessageRef{ChatID: q.Message.Chat.ID, MessageID: q.Message.MessageID}
	}
	return cb
}

func parseCommand(m *message) Payload {
	fields := strings.Fields(m.Text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return UnknownPayload{ChatID: m.Chat.ID, Reason: "not a command"}
	}
	// Group chats address commands as /cmd@botname.
	command, _, _ := strings.Cut(strings.TrimPrefix(fields[0], "/"), "@")
	return CommandMessage{
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		Command:   strings.ToLower(command),
		Args:      fields[1:],
	}
}

func allowed(namespace string, namespaces []string) bool {
	for _, ns := range namespaces {
		if ns == namespace {
			return true
		}
	}
	return false
}
