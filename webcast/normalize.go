package webcast

import (
	"strconv"
	"strings"

	"github.com/streamlab/webcast-relay/webcast/schema"
)

// NormalizeUsername canonicalizes a streamer handle for lookups: lowercase,
// no leading @.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
}

// NormalizePayload flattens one decoded sub-message into the shape consumers
// see: user fields lifted to the top level, nested detail blocks merged, and
// 64-bit identifiers rendered as decimal strings so they survive JSON.
func NormalizePayload(typeName string, data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+8)
	for k, v := range data {
		if k == "user" {
			continue
		}
		out[k] = v
	}
	if user, ok := data["user"].(map[string]any); ok {
		mergeUser(out, user)
	}

	switch typeName {
	case schema.TypeGift:
		flattenGift(out)
	case schema.TypeEmoteChat:
		flattenEmote(out)
	case schema.TypeQuestionNew:
		flattenQuestion(out)
	case schema.TypeEnvelope:
		flattenTreasureBox(out)
	case schema.TypeLinkMicBattle:
		out["battleUsers"] = flattenUserList(out["battleUsers"])
	case schema.TypeLinkMicArmies:
		flattenArmies(out)
	}
	return out
}

// mergeUser lifts the fields of a decoded User into dst.
func mergeUser(dst map[string]any, user map[string]any) {
	if id, ok := user["userId"].(uint64); ok {
		dst["userId"] = strconv.FormatUint(id, 10)
	}
	for _, k := range []string{"uniqueId", "nickname", "bioDescription", "secUid"} {
		if s, ok := user[k].(string); ok && s != "" {
			dst[k] = s
		}
	}
	if ct, ok := user["createTime"].(int64); ok {
		dst["createTime"] = ct
	}
	if pic, ok := user["profilePicture"].(map[string]any); ok {
		if u := pickProfilePictureURL(pic["urls"]); u != "" {
			dst["profilePictureUrl"] = u
		}
	}
	if fi, ok := user["followInfo"].(map[string]any); ok {
		if v, ok := fi["followingCount"].(int32); ok {
			dst["followingCount"] = v
		}
		if v, ok := fi["followerCount"].(int32); ok {
			dst["followerCount"] = v
		}
		if v, ok := fi["followStatus"].(int32); ok {
			dst["followRole"] = v
		}
	}

	badges := parseBadges(user["badges"])
	dst["userBadges"] = badges
	dst["isModerator"] = hasBadgeScene(badges, 1)
	dst["isSubscriber"] = hasBadgeScene(badges, 4) || hasBadgeScene(badges, 7)
	dst["gifterLevel"] = gifterLevel(badges)
}

// pickProfilePictureURL prefers the 100x100 rendition, then any variant that
// is not a shrunken thumbnail, then whatever comes first.
func pickProfilePictureURL(urls any) string {
	list, ok := urls.([]any)
	if !ok || len(list) == 0 {
		return ""
	}
	var first, nonShrink string
	for _, v := range list {
		u, ok := v.(string)
		if !ok || u == "" {
			continue
		}
		if strings.Contains(u, "100x100") {
			return u
		}
		if first == "" {
			first = u
		}
		if nonShrink == "" && !strings.Contains(u, "shrink") {
			nonShrink = u
		}
	}
	if nonShrink != "" {
		return nonShrink
	}
	return first
}

func parseBadges(raw any) []map[string]any {
	list, ok := raw.([]any)
	badges := []map[string]any{}
	if !ok {
		return badges
	}
	for _, v := range list {
		b, ok := v.(map[string]any)
		if !ok {
			continue
		}
		scene, _ := b["badgeSceneType"].(int32)
		if extra, ok := b["privilegeLogExtra"].(map[string]any); ok {
			if lvl, _ := extra["level"].(string); lvl != "" && lvl != "0" {
				n, _ := strconv.Atoi(lvl)
				entry := map[string]any{
					"type":           "privilege",
					"badgeSceneType": scene,
					"level":          n,
				}
				if id, _ := extra["privilegeId"].(string); id != "" {
					entry["privilegeId"] = id
				}
				badges = append(badges, entry)
			}
		}
		if imgs, ok := b["imageBadges"].([]any); ok {
			for _, iv := range imgs {
				img, ok := iv.(map[string]any)
				if !ok {
					continue
				}
				inner, _ := img["image"].(map[string]any)
				if u, _ := inner["url"].(string); u != "" {
					badges = append(badges, map[string]any{
						"type":           "image",
						"badgeSceneType": scene,
						"url":            u,
					})
				}
			}
		}
	}
	return badges
}

func hasBadgeScene(badges []map[string]any, scene int32) bool {
	for _, b := range badges {
		if s, _ := b["badgeSceneType"].(int32); s == scene {
			return true
		}
	}
	return false
}

// gifterLevel returns the level of the gifter privilege badge (scene 8),
// or 0 when absent.
func gifterLevel(badges []map[string]any) int {
	for _, b := range badges {
		if s, _ := b["badgeSceneType"].(int32); s != 8 {
			continue
		}
		if lvl, ok := b["level"].(int); ok {
			return lvl
		}
	}
	return 0
}

func flattenGift(out map[string]any) {
	giftID, _ := out["giftId"].(uint64)
	repeatCount, _ := out["repeatCount"].(int32)
	repeatEnd, _ := out["repeatEnd"].(bool)
	out["repeatEnd"] = repeatEnd

	var giftType int32
	if details, ok := out["giftDetails"].(map[string]any); ok {
		delete(out, "giftDetails")
		giftType, _ = details["giftType"].(int32)
		for _, k := range []string{"describe", "giftName"} {
			if s, ok := details[k].(string); ok {
				out[k] = s
			}
		}
		if v, ok := details["diamondCount"].(int32); ok {
			out["diamondCount"] = v
		}
		if img, ok := details["giftImage"].(map[string]any); ok {
			if u, _ := img["url"].(string); u != "" {
				out["giftImageUrl"] = u
			}
		}
		out["giftType"] = giftType
	}
	// Compact summary kept alongside the flattened fields; streak guards
	// key off gift_type and repeat_end.
	out["gift"] = map[string]any{
		"gift_id":      giftID,
		"repeat_count": repeatCount,
		"repeat_end":   repeatEnd,
		"gift_type":    giftType,
	}
}

func flattenEmote(out map[string]any) {
	details, ok := out["emote"].(map[string]any)
	if !ok {
		return
	}
	delete(out, "emote")
	if id, _ := details["emoteId"].(string); id != "" {
		out["emoteId"] = id
	}
	if img, ok := details["image"].(map[string]any); ok {
		if u, _ := img["url"].(string); u != "" {
			out["emoteImageUrl"] = u
		}
	}
}

func flattenQuestion(out map[string]any) {
	details, ok := out["details"].(map[string]any)
	if !ok {
		return
	}
	delete(out, "details")
	if text, _ := details["text"].(string); text != "" {
		out["questionText"] = text
	}
	if user, ok := details["user"].(map[string]any); ok {
		mergeUser(out, user)
	}
}

func flattenTreasureBox(out map[string]any) {
	box, ok := out["treasureBoxData"].(map[string]any)
	if !ok {
		return
	}
	delete(out, "treasureBoxData")
	if v, ok := box["coins"].(int32); ok {
		out["coins"] = v
	}
	if v, ok := box["canOpen"].(int32); ok {
		out["canOpen"] = v
	}
	if v, ok := box["timestamp"].(int64); ok {
		out["timestamp"] = v
	}
}

func flattenUserList(raw any) []map[string]any {
	list, ok := raw.([]any)
	users := []map[string]any{}
	if !ok {
		return users
	}
	for _, v := range list {
		u, ok := v.(map[string]any)
		if !ok {
			continue
		}
		flat := map[string]any{}
		mergeUser(flat, u)
		users = append(users, flat)
	}
	return users
}

func flattenArmies(out map[string]any) {
	items, ok := out["battleItems"].([]any)
	if !ok {
		return
	}
	delete(out, "battleItems")
	armies := []map[string]any{}
	for _, v := range items {
		item, ok := v.(map[string]any)
		if !ok {
			continue
		}
		army := map[string]any{}
		if id, ok := item["hostUserId"].(uint64); ok {
			army["hostUserId"] = strconv.FormatUint(id, 10)
		}
		if pts, ok := item["points"].(int32); ok {
			army["points"] = pts
		}
		army["participants"] = flattenUserList(item["participants"])
		armies = append(armies, army)
	}
	out["battleArmies"] = armies
}

// socialSubEvent maps a social message's displayType to the derived
// follow/share sub-event, when one applies.
func socialSubEvent(payload map[string]any) (EventName, bool) {
	dt, _ := payload["displayType"].(string)
	switch {
	case strings.Contains(dt, "follow"):
		return EventFollow, true
	case strings.Contains(dt, "share"):
		return EventShare, true
	}
	return "", false
}
