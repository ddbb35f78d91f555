// Package webcast supervises the lifecycle of a live-feed connection for one
// streamer: session acquisition, socket ownership, reconnect policy, and the
// normalized event stream handed to consumers.
package webcast

import "github.com/streamlab/webcast-relay/webcast/schema"

// EventName identifies one normalized event kind.
type EventName string

// Lifecycle events.
const (
	EventConnecting   EventName = "connecting"
	EventConnected    EventName = "connected"
	EventDisconnected EventName = "disconnected"
	EventReconnecting EventName = "reconnecting"
	EventError        EventName = "error"
	EventStreamEnd    EventName = "streamEnd"
)

// Domain events.
const (
	EventChat          EventName = "chat"
	EventGift          EventName = "gift"
	EventLike          EventName = "like"
	EventMember        EventName = "member"
	EventSocial        EventName = "social"
	EventRoomUser      EventName = "roomUser"
	EventSubscribe     EventName = "subscribe"
	EventEmote         EventName = "emote"
	EventLiveIntro     EventName = "liveIntro"
	EventQuestionNew   EventName = "questionNew"
	EventLinkMicBattle EventName = "linkMicBattle"
	EventLinkMicArmies EventName = "linkMicArmies"
	EventEnvelope      EventName = "envelope"
	EventControlAction EventName = "controlAction"

	// Social sub-events, derived from the social message's displayType.
	EventFollow EventName = "follow"
	EventShare  EventName = "share"
)

// Event is the normalized output unit handed to consumers. Payload shapes
// follow the flattening rules in normalize.go; consumers never see the raw
// nested schema structures.
type Event struct {
	Username string         `json:"username"`
	Name     EventName      `json:"event"`
	Payload  map[string]any `json:"data,omitempty"`
}

// eventNameByType maps decodable sub-message types to their event names.
// Control messages are absent: terminal actions become streamEnd and the
// rest controlAction, decided by the connector.
var eventNameByType = map[string]EventName{
	schema.TypeChat:          EventChat,
	schema.TypeGift:          EventGift,
	schema.TypeLike:          EventLike,
	schema.TypeMember:        EventMember,
	schema.TypeSocial:        EventSocial,
	schema.TypeRoomUserSeq:   EventRoomUser,
	schema.TypeSubNotify:     EventSubscribe,
	schema.TypeEmoteChat:     EventEmote,
	schema.TypeLiveIntro:     EventLiveIntro,
	schema.TypeQuestionNew:   EventQuestionNew,
	schema.TypeLinkMicBattle: EventLinkMicBattle,
	schema.TypeLinkMicArmies: EventLinkMicArmies,
	schema.TypeEnvelope:      EventEnvelope,
}
