package schema

// Message type names of the fixed Webcast feed. The transport types
// (TypeWebsocketMessage, TypeWebsocketAck, TypeResponse) carry the framing;
// the Webcast* domain types are the decodable sub-message payloads.
const (
	TypeWebsocketMessage = "WebcastWebsocketMessage"
	TypeWebsocketAck     = "WebcastWebsocketAck"
	TypeResponse         = "WebcastResponse"

	TypeControl       = "WebcastControlMessage"
	TypeRoomUserSeq   = "WebcastRoomUserSeqMessage"
	TypeChat          = "WebcastChatMessage"
	TypeMember        = "WebcastMemberMessage"
	TypeGift          = "WebcastGiftMessage"
	TypeSocial        = "WebcastSocialMessage"
	TypeLike          = "WebcastLikeMessage"
	TypeQuestionNew   = "WebcastQuestionNewMessage"
	TypeLinkMicBattle = "WebcastLinkMicBattle"
	TypeLinkMicArmies = "WebcastLinkMicArmies"
	TypeLiveIntro     = "WebcastLiveIntroMessage"
	TypeEmoteChat     = "WebcastEmoteChatMessage"
	TypeEnvelope      = "WebcastEnvelopeMessage"
	TypeSubNotify     = "WebcastSubNotifyMessage"
)

// DomainTypes lists the sub-message types that decode into domain events,
// in no particular order.
func DomainTypes() []string {
	return []string{
		TypeControl, TypeRoomUserSeq, TypeChat, TypeMember, TypeGift,
		TypeSocial, TypeLike, TypeQuestionNew, TypeLinkMicBattle,
		TypeLinkMicArmies, TypeLiveIntro, TypeEmoteChat, TypeEnvelope,
		TypeSubNotify,
	}
}

// messageLayouts returns the field tables for every known message type.
// Transport field numbers are fixed by the upstream protocol and must not
// change; domain field numbers follow the observed feed schema.
func messageLayouts() map[string][]Field {
	return map[string][]Field{
		TypeWebsocketMessage: {
			{Num: 2, Name: "id", Kind: KindUint64},
			{Num: 7, Name: "type", Kind: KindString},
			{Num: 8, Name: "binary", Kind: KindBytes},
		},
		TypeWebsocketAck: {
			{Num: 2, Name: "id", Kind: KindUint64, Required: true},
			{Num: 7, Name: "type", Kind: KindString, Required: true},
		},
		TypeResponse: {
			{Num: 1, Name: "messages", Kind: KindMessage, Repeated: true, MessageType: "Message"},
			{Num: 2, Name: "cursor", Kind: KindString},
			{Num: 3, Name: "fetchInterval", Kind: KindInt32},
			{Num: 4, Name: "serverTimestamp", Kind: KindInt64},
			{Num: 5, Name: "internalExt", Kind: KindString},
			{Num: 6, Name: "fetchType", Kind: KindInt32},
			{Num: 7, Name: "wsParams", Kind: KindMessage, Repeated: true, MessageType: "WebsocketParam"},
			{Num: 8, Name: "heartbeatDuration", Kind: KindInt32},
			{Num: 9, Name: "needAck", Kind: KindBool},
			{Num: 10, Name: "wsUrl", Kind: KindString},
		},
		"Message": {
			{Num: 1, Name: "type", Kind: KindString},
			{Num: 2, Name: "binary", Kind: KindBytes},
		},
		"WebsocketParam": {
			{Num: 1, Name: "name", Kind: KindString},
			{Num: 2, Name: "value", Kind: KindString},
		},

		TypeControl: {
			{Num: 2, Name: "action", Kind: KindInt32},
		},
		TypeRoomUserSeq: {
			{Num: 3, Name: "viewerCount", Kind: KindInt32},
		},
		TypeChat: {
			{Num: 2, Name: "user", Kind: KindMessage, MessageType: "User"},
			{Num: 3, Name: "comment", Kind: KindString},
		},
		TypeMember: {
			{Num: 2, Name: "user", Kind: KindMessage, MessageType: "User"},
			{Num: 10, Name: "actionId", Kind: KindInt32},
		},
		TypeGift: {
			{Num: 2, Name: "giftId", Kind: KindUint64},
			{Num: 5, Name: "repeatCount", Kind: KindInt32},
			{Num: 7, Name: "user", Kind: KindMessage, MessageType: "User"},
			{Num: 9, Name: "repeatEnd", Kind: KindBool},
			{Num: 11, Name: "groupId", Kind: KindUint64},
			{Num: 15, Name: "giftDetails", Kind: KindMessage, MessageType: "GiftDetails"},
		},
		"GiftDetails": {
			{Num: 1, Name: "giftImage", Kind: KindMessage, MessageType: "Image"},
			{Num: 2, Name: "describe", Kind: KindString},
			{Num: 11, Name: "giftType", Kind: KindInt32},
			{Num: 12, Name: "diamondCount", Kind: KindInt32},
			{Num: 16, Name: "giftName", Kind: KindString},
		},
		"Image": {
			{Num: 1, Name: "url", Kind: KindString},
		},
		TypeSocial: {
			{Num: 2, Name: "user", Kind: KindMessage, MessageType: "User"},
			{Num: 4, Name: "displayType", Kind: KindString},
			{Num: 6, Name: "shareType", Kind: KindInt32},
			{Num: 7, Name: "action", Kind: KindInt32},
		},
		TypeLike: {
			{Num: 2, Name: "likeCount", Kind: KindInt32},
			{Num: 3, Name: "totalLikeCount", Kind: KindInt32},
			{Num: 5, Name: "user", Kind: KindMessage, MessageType: "User"},
		},
		TypeQuestionNew: {
			{Num: 2, Name: "details", Kind: KindMessage, MessageType: "QuestionDetails"},
		},
		"QuestionDetails": {
			{Num: 2, Name: "text", Kind: KindString},
			{Num: 5, Name: "user", Kind: KindMessage, MessageType: "User"},
		},
		TypeLinkMicBattle: {
			{Num: 2, Name: "battleId", Kind: KindUint64},
			{Num: 10, Name: "battleUsers", Kind: KindMessage, Repeated: true, MessageType: "User"},
		},
		TypeLinkMicArmies: {
			{Num: 3, Name: "battleItems", Kind: KindMessage, Repeated: true, MessageType: "BattleArmy"},
			{Num: 7, Name: "battleStatus", Kind: KindInt32},
		},
		"BattleArmy": {
			{Num: 1, Name: "hostUserId", Kind: KindUint64},
			{Num: 2, Name: "points", Kind: KindInt32},
			{Num: 3, Name: "participants", Kind: KindMessage, Repeated: true, MessageType: "User"},
		},
		TypeLiveIntro: {
			{Num: 2, Name: "id", Kind: KindUint64},
			{Num: 4, Name: "description", Kind: KindString},
			{Num: 5, Name: "user", Kind: KindMessage, MessageType: "User"},
		},
		TypeEmoteChat: {
			{Num: 2, Name: "user", Kind: KindMessage, MessageType: "User"},
			{Num: 3, Name: "emote", Kind: KindMessage, MessageType: "EmoteDetails"},
		},
		"EmoteDetails": {
			{Num: 1, Name: "emoteId", Kind: KindString},
			{Num: 2, Name: "image", Kind: KindMessage, MessageType: "Image"},
		},
		TypeEnvelope: {
			{Num: 1, Name: "user", Kind: KindMessage, MessageType: "User"},
			{Num: 2, Name: "treasureBoxData", Kind: KindMessage, MessageType: "TreasureBoxData"},
		},
		"TreasureBoxData": {
			{Num: 5, Name: "coins", Kind: KindInt32},
			{Num: 6, Name: "canOpen", Kind: KindInt32},
			{Num: 7, Name: "timestamp", Kind: KindInt64},
		},
		TypeSubNotify: {
			{Num: 2, Name: "user", Kind: KindMessage, MessageType: "User"},
			{Num: 3, Name: "subMonth", Kind: KindInt32},
			{Num: 4, Name: "subscribingStatus", Kind: KindInt32},
		},

		"User": {
			{Num: 1, Name: "userId", Kind: KindUint64},
			{Num: 3, Name: "nickname", Kind: KindString},
			{Num: 5, Name: "bioDescription", Kind: KindString},
			{Num: 9, Name: "profilePicture", Kind: KindMessage, MessageType: "ProfilePicture"},
			{Num: 16, Name: "createTime", Kind: KindInt64},
			{Num: 22, Name: "followInfo", Kind: KindMessage, MessageType: "FollowInfo"},
			{Num: 38, Name: "uniqueId", Kind: KindString},
			{Num: 46, Name: "secUid", Kind: KindString},
			{Num: 64, Name: "badges", Kind: KindMessage, Repeated: true, MessageType: "BadgeAttributes"},
		},
		"ProfilePicture": {
			{Num: 1, Name: "urls", Kind: KindString, Repeated: true},
		},
		"FollowInfo": {
			{Num: 1, Name: "followingCount", Kind: KindInt32},
			{Num: 2, Name: "followerCount", Kind: KindInt32},
			{Num: 3, Name: "followStatus", Kind: KindInt32},
		},
		"BadgeAttributes": {
			{Num: 3, Name: "badgeSceneType", Kind: KindInt32},
			{Num: 12, Name: "privilegeLogExtra", Kind: KindMessage, MessageType: "PrivilegeLogExtra"},
			{Num: 20, Name: "imageBadges", Kind: KindMessage, Repeated: true, MessageType: "ImageBadge"},
		},
		"ImageBadge": {
			{Num: 2, Name: "image", Kind: KindMessage, MessageType: "Image"},
		},
		"PrivilegeLogExtra": {
			{Num: 2, Name: "privilegeId", Kind: KindString},
			{Num: 3, Name: "level", Kind: KindString},
		},
	}
}
