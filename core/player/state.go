package player

import "fmt"

// State 播放器所处的生命周期阶段
type State int

const (
	Idle State = iota
	LoadingFile
	ResolvingPatches
	Playing
	Paused
	Stopped
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LoadingFile:
		return "loading_file"
	case ResolvingPatches:
		return "resolving_patches"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// loading 是否正在获取数据或音色
func (s State) loading() bool {
	return s == LoadingFile || s == ResolvingPatches
}

// active 是否有歌曲接在输出上
func (s State) active() bool {
	return s == Playing || s == Paused
}
