package webcast

import (
	"testing"

	"github.com/streamlab/webcast-relay/webcast/schema"
)

func TestNormalizeUsername(t *testing.T) {
	cases := map[string]string{
		"@SomeStreamer": "somestreamer",
		"  tv_host  ":   "tv_host",
		"plain":         "plain",
	}
	for in, want := range cases {
		if got := NormalizeUsername(in); got != want {
			t.Errorf("NormalizeUsername(%q) = %q, want %q", in, got, want)
		}
	}
}

func testUser() map[string]any {
	return map[string]any{
		"userId":   uint64(7212159610993883141),
		"uniqueId": "viewer42",
		"nickname": "Viewer",
		"profilePicture": map[string]any{
			"urls": []any{
				"https://cdn.example/pic-shrink.jpeg",
				"https://cdn.example/pic-100x100.jpeg",
				"https://cdn.example/pic-full.jpeg",
			},
		},
		"followInfo": map[string]any{
			"followingCount": int32(15),
			"followerCount":  int32(220),
			"followStatus":   int32(1),
		},
		"badges": []any{
			map[string]any{
				"badgeSceneType": int32(1),
				"imageBadges": []any{
					map[string]any{"image": map[string]any{"url": "https://cdn.example/mod.png"}},
				},
			},
			map[string]any{
				"badgeSceneType": int32(8),
				"privilegeLogExtra": map[string]any{
					"privilegeId": "7138381747968429829",
					"level":       "12",
				},
			},
		},
	}
}

func TestNormalizePayload_ChatUserFlattening(t *testing.T) {
	got := NormalizePayload(schema.TypeChat, map[string]any{
		"user":    testUser(),
		"comment": "hello",
	})

	if got["comment"] != "hello" {
		t.Errorf("comment = %v", got["comment"])
	}
	if got["userId"] != "7212159610993883141" {
		t.Errorf("userId = %v, want decimal string", got["userId"])
	}
	if got["uniqueId"] != "viewer42" || got["nickname"] != "Viewer" {
		t.Errorf("identity fields = %v / %v", got["uniqueId"], got["nickname"])
	}
	if got["profilePictureUrl"] != "https://cdn.example/pic-100x100.jpeg" {
		t.Errorf("profilePictureUrl = %v, want the 100x100 rendition", got["profilePictureUrl"])
	}
	if got["followRole"] != int32(1) {
		t.Errorf("followRole = %v", got["followRole"])
	}
	if got["isModerator"] != true {
		t.Error("scene-1 image badge should mark moderator")
	}
	if got["isSubscriber"] != false {
		t.Error("no scene 4 or 7 badge, isSubscriber should be false")
	}
	if got["gifterLevel"] != 12 {
		t.Errorf("gifterLevel = %v, want 12", got["gifterLevel"])
	}
	if _, ok := got["user"]; ok {
		t.Error("nested user block should be dropped after flattening")
	}
}

func TestNormalizePayload_SubscriberBadges(t *testing.T) {
	for _, scene := range []int32{4, 7} {
		user := map[string]any{
			"userId": uint64(1),
			"badges": []any{
				map[string]any{
					"badgeSceneType": scene,
					"imageBadges": []any{
						map[string]any{"image": map[string]any{"url": "https://cdn.example/sub.png"}},
					},
				},
			},
		}
		got := NormalizePayload(schema.TypeChat, map[string]any{"user": user})
		if got["isSubscriber"] != true {
			t.Errorf("scene %d badge should mark subscriber", scene)
		}
	}
}

func TestNormalizePayload_GiftFlattening(t *testing.T) {
	got := NormalizePayload(schema.TypeGift, map[string]any{
		"user":        testUser(),
		"giftId":      uint64(5655),
		"repeatCount": int32(3),
		"giftDetails": map[string]any{
			"giftName":     "Rose",
			"describe":     "sent Rose",
			"diamondCount": int32(1),
			"giftType":     int32(1),
			"giftImage":    map[string]any{"url": "https://cdn.example/rose.png"},
		},
	})

	if got["giftName"] != "Rose" || got["diamondCount"] != int32(1) {
		t.Errorf("gift details not lifted: %v", got)
	}
	if got["giftImageUrl"] != "https://cdn.example/rose.png" {
		t.Errorf("giftImageUrl = %v", got["giftImageUrl"])
	}
	if got["repeatEnd"] != false {
		t.Errorf("repeatEnd should default to false, got %v", got["repeatEnd"])
	}
	if _, ok := got["giftDetails"]; ok {
		t.Error("giftDetails block should be dropped after lifting")
	}
	summary, ok := got["gift"].(map[string]any)
	if !ok {
		t.Fatalf("gift summary missing: %v", got["gift"])
	}
	if summary["gift_id"] != uint64(5655) || summary["repeat_count"] != int32(3) || summary["gift_type"] != int32(1) {
		t.Errorf("gift summary = %v", summary)
	}
}

func TestNormalizePayload_Emote(t *testing.T) {
	got := NormalizePayload(schema.TypeEmoteChat, map[string]any{
		"user": testUser(),
		"emote": map[string]any{
			"emoteId": "em_77",
			"image":   map[string]any{"url": "https://cdn.example/em.png"},
		},
	})
	if got["emoteId"] != "em_77" || got["emoteImageUrl"] != "https://cdn.example/em.png" {
		t.Errorf("emote not flattened: %v", got)
	}
}

func TestNormalizePayload_TreasureBox(t *testing.T) {
	got := NormalizePayload(schema.TypeEnvelope, map[string]any{
		"user": testUser(),
		"treasureBoxData": map[string]any{
			"coins":     int32(100),
			"canOpen":   int32(1),
			"timestamp": int64(1700000000),
		},
	})
	if got["coins"] != int32(100) || got["canOpen"] != int32(1) || got["timestamp"] != int64(1700000000) {
		t.Errorf("treasure box not lifted: %v", got)
	}
}

func TestNormalizePayload_LinkMicArmies(t *testing.T) {
	got := NormalizePayload(schema.TypeLinkMicArmies, map[string]any{
		"battleStatus": int32(1),
		"battleItems": []any{
			map[string]any{
				"hostUserId": uint64(9000000000000000001),
				"points":     int32(250),
				"participants": []any{
					map[string]any{"userId": uint64(5), "uniqueId": "p1"},
				},
			},
		},
	})
	armies, ok := got["battleArmies"].([]map[string]any)
	if !ok || len(armies) != 1 {
		t.Fatalf("battleArmies = %v", got["battleArmies"])
	}
	if armies[0]["hostUserId"] != "9000000000000000001" {
		t.Errorf("hostUserId = %v, want decimal string", armies[0]["hostUserId"])
	}
	participants, _ := armies[0]["participants"].([]map[string]any)
	if len(participants) != 1 || participants[0]["uniqueId"] != "p1" {
		t.Errorf("participants = %v", armies[0]["participants"])
	}
}

func TestSocialSubEvent(t *testing.T) {
	cases := []struct {
		displayType string
		want        EventName
		ok          bool
	}{
		{"pm_main_follow_message_viewer_2", EventFollow, true},
		{"pm_mt_guidance_share", EventShare, true},
		{"pm_mt_join_message_other_viewer", "", false},
	}
	for _, tc := range cases {
		got, ok := socialSubEvent(map[string]any{"displayType": tc.displayType})
		if ok != tc.ok || got != tc.want {
			t.Errorf("socialSubEvent(%q) = %q, %v; want %q, %v", tc.displayType, got, ok, tc.want, tc.ok)
		}
	}
}
