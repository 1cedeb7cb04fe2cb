package event

import (
	"encoding/json"
	"fmt"
)

// Kind 事件类型，封闭枚举
type Kind int

const (
	KindInit Kind = iota
	KindLoadFile
	KindLoadPatch
	KindPlay
	KindPause
	KindResume
	KindStop
	KindEnd
	KindError
	// KindCustom 由调用方通过 EmitEvent 注入，名字取 Event.Label
	KindCustom
)

// String 返回事件在线上的名字
func (k Kind) String() string {
	switch k {
	case KindInit:
		return "MIDI_INIT"
	case KindLoadFile:
		return "MIDI_LOAD_FILE"
	case KindLoadPatch:
		return "MIDI_LOAD_PATCH"
	case KindPlay:
		return "MIDI_PLAY"
	case KindPause:
		return "MIDI_PAUSE"
	case KindResume:
		return "MIDI_RESUME"
	case KindStop:
		return "MIDI_STOP"
	case KindEnd:
		return "MIDI_END"
	case KindError:
		return "MIDI_ERROR"
	case KindCustom:
		return "MIDI_CUSTOM"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event 播放器事件，发出后不再修改
type Event struct {
	Kind     Kind
	Label    string // 仅 KindCustom 使用
	Message  string
	Err      error
	Time     *float64 // 播放进度，单位秒
	PlayerID string
}

// Name 返回线上事件名，自定义事件使用 Label
func (e Event) Name() string {
	if e.Kind == KindCustom && e.Label != "" {
		return e.Label
	}
	return e.Kind.String()
}

// Seconds 返回时间字段，未携带时为 0
func (e Event) Seconds() float64 {
	if e.Time == nil {
		return 0
	}
	return *e.Time
}

// At 返回携带时间的事件副本
func (e Event) At(seconds float64) Event {
	e.Time = &seconds
	return e
}

type wireEvent struct {
	Event    string   `json:"event"`
	Message  string   `json:"message,omitempty"`
	Error    string   `json:"error,omitempty"`
	Time     *float64 `json:"time,omitempty"`
	PlayerID string   `json:"playerId"`
}

// MarshalJSON 按观察者协议序列化
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		Event:    e.Name(),
		Message:  e.Message,
		Time:     e.Time,
		PlayerID: e.PlayerID,
	}
	if e.Err != nil {
		w.Error = e.Err.Error()
	}
	return json.Marshal(w)
}

func Init(message string) Event {
	return Event{Kind: KindInit, Message: message}
}

func LoadFile(message string) Event {
	return Event{Kind: KindLoadFile, Message: message}
}

func LoadPatch(message string) Event {
	return Event{Kind: KindLoadPatch, Message: message}
}

func Play(seconds float64) Event {
	return Event{Kind: KindPlay}.At(seconds)
}

func Pause(seconds float64) Event {
	return Event{Kind: KindPause}.At(seconds)
}

func Resume(seconds float64) Event {
	return Event{Kind: KindResume}.At(seconds)
}

// Stop 的时间总是 0
func Stop() Event {
	return Event{Kind: KindStop}.At(0)
}

func End(seconds float64) Event {
	return Event{Kind: KindEnd}.At(seconds)
}

func Error(message string, err error) Event {
	if message == "" {
		message = "An error occurred."
	}
	return Event{Kind: KindError, Message: message, Err: err}
}

func Custom(label, message string) Event {
	return Event{Kind: KindCustom, Label: label, Message: message}
}
