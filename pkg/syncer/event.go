package syncer

import (
	"asphalt/pkg/asset"
	"asphalt/pkg/types"
)

type eventKind int

const (
	evDiscovered eventKind = iota
	evInFlight
	evFinished
	evFailed
)

type finishState int

const (
	stateSynced finishState = iota
	stateDuplicate
)

// event 从 input 的生产者发给唯一的收集者
type event struct {
	kind  eventKind
	input string
	path  string

	// 仅 evFinished
	state finishState
	isNew bool
	hash  types.Hash
	ref   *asset.Ref

	// 仅 evFailed; inFlight 表示失败发生在后端同步阶段
	err      error
	inFlight bool
}

// Progress 是收集者维护的计数器
type Progress struct {
	Discovered int
	Synced     int
	New        int
	Dupes      int
	Failed     int
	InFlight   int
}

// NoOp 是已经存在于 lockfile 的资源数
func (p Progress) NoOp() int { return p.Synced - p.New }
