package bilichat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NotificationMsg is the tagged union of recognized chat-room commands.
// Unrecognized cmd values decode to Other rather than failing.
type NotificationMsg interface {
	Cmd() string
}

// DanmuMsg is a chat message. Its wire shape is a heterogeneous positional
// array rather than a JSON object; see decodeDanmuMsg.
type DanmuMsg struct {
	UID            uint64
	Uname          string
	Text           string
	MedalLevel     int
	MedalName      string
	MedalOwnerName string
	MedalOwnerUID  uint64
}

func (DanmuMsg) Cmd() string { return "DANMU_MSG" }

// EntryEffect fires when a guard-tier viewer's entrance animation plays.
type EntryEffect struct {
	UID   uint64 `json:"uid"`
	Uname string `json:"uname"`
}

func (EntryEffect) Cmd() string { return "ENTRY_EFFECT" }

// InteractWord covers room entry, follow, and share interactions.
// MsgType: 1=entry, 2=follow, 3=share, 5=mutual-follow.
type InteractWord struct {
	UID     uint64 `json:"uid"`
	Uname   string `json:"uname"`
	MsgType int    `json:"msg_type"`
}

func (InteractWord) Cmd() string { return "INTERACT_WORD" }

// SendGift is a single gift event.
type SendGift struct {
	UID      uint64 `json:"uid"`
	Uname    string `json:"uname"`
	GiftName string `json:"giftName"`
	GiftID   int64  `json:"giftId"`
	Num      int    `json:"num"`
	Price    int64  `json:"price"`
	CoinType string `json:"coin_type"`
	Action   string `json:"action"`
}

func (SendGift) Cmd() string { return "SEND_GIFT" }

// ComboSend aggregates a burst of identical gifts sent in quick succession.
type ComboSend struct {
	UID      uint64 `json:"uid"`
	Uname    string `json:"uname"`
	GiftName string `json:"gift_name"`
	GiftID   int64  `json:"gift_id"`
	ComboNum int    `json:"combo_num"`
	Price    int64  `json:"price"`
}

func (ComboSend) Cmd() string { return "COMBO_SEND" }

// GuardBuy is a paid subscription (captain/admiral/governor) purchase.
type GuardBuy struct {
	UID        uint64 `json:"uid"`
	Username   string `json:"username"`
	GuardLevel int    `json:"guard_level"`
	Price      int64  `json:"price"`
	Num        int    `json:"num"`
}

func (GuardBuy) Cmd() string { return "GUARD_BUY" }

// LiveMsg means the room started broadcasting.
type LiveMsg struct{}

func (LiveMsg) Cmd() string { return "LIVE" }

// PreparingMsg means the room stopped broadcasting.
type PreparingMsg struct{}

func (PreparingMsg) Cmd() string { return "PREPARING" }

// NoticeMsg is a site-wide or room announcement; its shape varies too much
// to be worth a typed struct, so the data object is kept raw.
type NoticeMsg struct {
	Raw json.RawMessage
}

func (NoticeMsg) Cmd() string { return "NOTICE_MSG" }

// StopLiveRoomList is periodically pushed with rooms that stopped
// broadcasting; kept raw since consumers rarely need it.
type StopLiveRoomList struct {
	Raw json.RawMessage
}

func (StopLiveRoomList) Cmd() string { return "STOP_LIVE_ROOM_LIST" }

// RoomRealTimeMessageUpdate carries live viewer/fan counters.
type RoomRealTimeMessageUpdate struct {
	Raw json.RawMessage
}

func (RoomRealTimeMessageUpdate) Cmd() string { return "ROOM_REAL_TIME_MESSAGE_UPDATE" }

// OnlineRank covers the ONLINE_RANK_* family (count/top-list updates).
type OnlineRank struct {
	CmdName string
	Raw     json.RawMessage
}

func (o OnlineRank) Cmd() string { return o.CmdName }

// HotRank covers the HOT_RANK_* family (category leaderboard updates).
type HotRank struct {
	CmdName string
	Raw     json.RawMessage
}

func (h HotRank) Cmd() string { return h.CmdName }

// PKBattle covers the PK_BATTLE_* family (cross-room PK events).
type PKBattle struct {
	CmdName string
	Raw     json.RawMessage
}

func (p PKBattle) Cmd() string { return p.CmdName }

// Other is the catch-all for any cmd this client does not recognize. The
// server adds new event kinds unilaterally; an unknown cmd must never be
// treated as a decode failure.
type Other struct {
	CmdName string
	Raw     json.RawMessage
}

func (o Other) Cmd() string { return o.CmdName }

type notificationEnvelope struct {
	Cmd  string          `json:"cmd"`
	Info json.RawMessage `json:"info,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func decodeNotification(body []byte) (NotificationMsg, error) {
	var env notificationEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode notification envelope: %w", err)
	}

	switch {
	case env.Cmd == "DANMU_MSG":
		return decodeDanmuMsg(env.Info)
	case env.Cmd == "ENTRY_EFFECT":
		var d EntryEffect
		if err := unmarshalIfPresent(env.Data, &d); err != nil {
			return nil, err
		}
		return d, nil
	case env.Cmd == "INTERACT_WORD":
		var d InteractWord
		if err := unmarshalIfPresent(env.Data, &d); err != nil {
			return nil, err
		}
		return d, nil
	case env.Cmd == "SEND_GIFT":
		var d SendGift
		if err := unmarshalIfPresent(env.Data, &d); err != nil {
			return nil, err
		}
		return d, nil
	case env.Cmd == "COMBO_SEND":
		var d ComboSend
		if err := unmarshalIfPresent(env.Data, &d); err != nil {
			return nil, err
		}
		return d, nil
	case env.Cmd == "GUARD_BUY":
		var d GuardBuy
		if err := unmarshalIfPresent(env.Data, &d); err != nil {
			return nil, err
		}
		return d, nil
	case env.Cmd == "LIVE":
		return LiveMsg{}, nil
	case env.Cmd == "PREPARING":
		return PreparingMsg{}, nil
	case env.Cmd == "NOTICE_MSG":
		return NoticeMsg{Raw: env.Data}, nil
	case env.Cmd == "STOP_LIVE_ROOM_LIST":
		return StopLiveRoomList{Raw: env.Data}, nil
	case env.Cmd == "ROOM_REAL_TIME_MESSAGE_UPDATE":
		return RoomRealTimeMessageUpdate{Raw: env.Data}, nil
	case strings.HasPrefix(env.Cmd, "ONLINE_RANK_"):
		return OnlineRank{CmdName: env.Cmd, Raw: env.Data}, nil
	case strings.HasPrefix(env.Cmd, "HOT_RANK_"):
		return HotRank{CmdName: env.Cmd, Raw: env.Data}, nil
	case strings.HasPrefix(env.Cmd, "PK_BATTLE_"):
		return PKBattle{CmdName: env.Cmd, Raw: env.Data}, nil
	default:
		return Other{CmdName: env.Cmd, Raw: body}, nil
	}
}

func unmarshalIfPresent(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// decodeDanmuMsg extracts a DanmuMsg from DANMU_MSG's positional "info"
// array: info[1] is the text, info[2] is [uid, uname, ...], info[3] is
// [medal_lv, medal_name, medal_owner_name, ..., medal_owner_uid]. Missing
// indices default to zero/empty; a non-array info is a decode error.
func decodeDanmuMsg(raw json.RawMessage) (NotificationMsg, error) {
	var info []json.RawMessage
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("danmu info is not an array: %w", err)
	}

	var d DanmuMsg

	if len(info) > 1 {
		_ = json.Unmarshal(info[1], &d.Text)
	}

	if len(info) > 2 {
		var user []json.RawMessage
		if err := json.Unmarshal(info[2], &user); err == nil {
			if len(user) > 0 {
				_ = json.Unmarshal(user[0], &d.UID)
			}
			if len(user) > 1 {
				_ = json.Unmarshal(user[1], &d.Uname)
			}
		}
	}

	if len(info) > 3 {
		var medal []json.RawMessage
		if err := json.Unmarshal(info[3], &medal); err == nil && len(medal) > 0 {
			if len(medal) > 0 {
				_ = json.Unmarshal(medal[0], &d.MedalLevel)
			}
			if len(medal) > 1 {
				_ = json.Unmarshal(medal[1], &d.MedalName)
			}
			if len(medal) > 2 {
				_ = json.Unmarshal(medal[2], &d.MedalOwnerName)
			}
			_ = json.Unmarshal(medal[len(medal)-1], &d.MedalOwnerUID)
		}
	}

	return d, nil
}
