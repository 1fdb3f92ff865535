package selection

import (
	"sync"

	"novel2video/internal/domain/entity"
)

// Eviction 参考池淘汰策略
type Eviction string

const (
	// EvictOldest 超出容量时丢弃最早加入的参考
	EvictOldest Eviction = "oldest"
	// EvictPinPortraits 优先保留角色立绘，先丢弃最早的帧；立绘占满容量时才丢弃最早的立绘
	EvictPinPortraits Eviction = "pin_portraits"
)

// Registry 参考素材登记表。帧选定后追加，后续帧的参考选择读取快照。
type Registry struct {
	mu       sync.Mutex
	items    []entity.Reference
	maxPool  int
	eviction Eviction
}

// NewRegistry 创建登记表，maxPool<=0 表示不限容量
func NewRegistry(maxPool int, eviction Eviction, initial ...entity.Reference) *Registry {
	if eviction == "" {
		eviction = EvictPinPortraits
	}
	r := &Registry{maxPool: maxPool, eviction: eviction}
	r.Append(initial...)
	return r
}

// Append 追加参考，相同路径只保留最新描述
func (r *Registry) Append(refs ...entity.Reference) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ref := range refs {
		if i := r.indexOf(ref.Path); i >= 0 {
			r.items = append(r.items[:i], r.items[i+1:]...)
		}
		r.items = append(r.items, ref)
	}
	r.evict()
}

// Snapshot 返回当前参考的副本
func (r *Registry) Snapshot() []entity.Reference {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]entity.Reference, len(r.items))
	copy(out, r.items)
	return out
}

// Len 当前参考数量
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func (r *Registry) indexOf(path string) int {
	for i, it := range r.items {
		if it.Path == path {
			return i
		}
	}
	return -1
}

func (r *Registry) evict() {
	if r.maxPool <= 0 {
		return
	}
	for len(r.items) > r.maxPool {
		victim := 0
		if r.eviction == EvictPinPortraits {
			victim = r.pinnedVictim()
		}
		r.items = append(r.items[:victim], r.items[victim+1:]...)
	}
}

// pinnedVictim 立绘最多占 maxPool-1 个位置，至少给帧留一个；
// 立绘未占满时丢弃最早的帧，否则丢弃最早的立绘
func (r *Registry) pinnedVictim() int {
	portraits, firstFrame := 0, -1
	for i, it := range r.items {
		if it.Portrait {
			portraits++
		} else if firstFrame < 0 {
			firstFrame = i
		}
	}
	if firstFrame >= 0 && portraits < r.maxPool {
		return firstFrame
	}
	for i, it := range r.items {
		if it.Portrait {
			return i
		}
	}
	return 0
}
