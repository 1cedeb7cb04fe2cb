package player

import "errors"

var (
	ErrUnknownSource   = errors.New("player: neither data nor url given")
	ErrAmbiguousSource = errors.New("player: both data and url given")
	ErrClosed          = errors.New("player: closed")
)

// Source 播放来源：内存中的 MIDI 数据或下载地址，二者只能有一个
type Source struct {
	Data []byte
	URL  string
	// Name 用在提示消息里的歌曲名
	Name string
}

// FromBytes 使用内存中的 MIDI 数据
func FromBytes(data []byte, name string) Source {
	return Source{Data: data, Name: name}
}

// FromURL 从 location 获取数据
func FromURL(location, name string) Source {
	return Source{URL: location, Name: name}
}

// validate 空切片与 nil 一样视为没有数据，空的 MIDI 数据无法播放
func (s Source) validate() error {
	hasData, hasURL := len(s.Data) > 0, s.URL != ""
	switch {
	case !hasData && !hasURL:
		return ErrUnknownSource
	case hasData && hasURL:
		return ErrAmbiguousSource
	}
	return nil
}

func (s Source) describe() string {
	if s.URL != "" {
		return s.URL
	}
	return "memory"
}

// formatName 生成消息里的 " 'name'"，没有名字时为空
func formatName(name string) string {
	if name == "" {
		return ""
	}
	return " '" + name + "'"
}
