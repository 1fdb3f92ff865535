package entity

import "sort"

// CharacterInEvent 事件级角色，由同一事件内各场景角色合并得到
type CharacterInEvent struct {
	Index             int            `json:"index"`
	IdentifierInEvent string         `json:"identifier_in_event"`
	ActiveScenes      map[int]string `json:"active_scenes"`
	StaticFeatures    string         `json:"static_features"`
}

// CharacterInNovel 小说级角色
type CharacterInNovel struct {
	Index             int            `json:"index"`
	IdentifierInNovel string         `json:"identifier_in_novel"`
	ActiveEvents      map[int]string `json:"active_events"`
	StaticFeatures    string         `json:"static_features"`
}

// Clone 深拷贝，折叠时不修改上一步的登记表
func (c CharacterInNovel) Clone() CharacterInNovel {
	events := make(map[int]string, len(c.ActiveEvents))
	for k, v := range c.ActiveEvents {
		events[k] = v
	}
	c.ActiveEvents = events
	return c
}

// CloneRegistry 深拷贝整个登记表
func CloneRegistry(registry []CharacterInNovel) []CharacterInNovel {
	out := make([]CharacterInNovel, len(registry))
	for i, c := range registry {
		out[i] = c.Clone()
	}
	return out
}

// SceneIndexes 按升序返回出场场景
func (c CharacterInEvent) SceneIndexes() []int {
	idx := make([]int, 0, len(c.ActiveScenes))
	for k := range c.ActiveScenes {
		idx = append(idx, k)
	}
	sort.Ints(idx)
	return idx
}

// NovelIndex 小说级角色的查找索引
type NovelIndex struct {
	byIdentifier map[string]*CharacterInNovel
	// (event, identifier_in_event) -> 小说角色
	byEventLocal map[int]map[string]*CharacterInNovel
}

// IndexNovelCharacters 一次性构建索引，避免重复线性扫描
func IndexNovelCharacters(registry []CharacterInNovel) *NovelIndex {
	idx := &NovelIndex{
		byIdentifier: make(map[string]*CharacterInNovel, len(registry)),
		byEventLocal: make(map[int]map[string]*CharacterInNovel),
	}
	for i := range registry {
		c := &registry[i]
		idx.byIdentifier[c.IdentifierInNovel] = c
		for ev, local := range c.ActiveEvents {
			m, ok := idx.byEventLocal[ev]
			if !ok {
				m = make(map[string]*CharacterInNovel)
				idx.byEventLocal[ev] = m
			}
			m[local] = c
		}
	}
	return idx
}

// ByIdentifier 按小说级标识查找
func (x *NovelIndex) ByIdentifier(identifier string) (*CharacterInNovel, bool) {
	c, ok := x.byIdentifier[identifier]
	return c, ok
}

// ByEventLocal 按事件内标识查找
func (x *NovelIndex) ByEventLocal(event int, identifierInEvent string) (*CharacterInNovel, bool) {
	m, ok := x.byEventLocal[event]
	if !ok {
		return nil, false
	}
	c, ok := m[identifierInEvent]
	return c, ok
}

// EventIndex 事件级角色按 (scene, identifier_in_scene) 的索引
type EventIndex map[int]map[string]*CharacterInEvent

// IndexEventCharacters 构建场景内标识到事件角色的映射
func IndexEventCharacters(chars []CharacterInEvent) EventIndex {
	idx := make(EventIndex)
	for i := range chars {
		c := &chars[i]
		for scene, local := range c.ActiveScenes {
			m, ok := idx[scene]
			if !ok {
				m = make(map[string]*CharacterInEvent)
				idx[scene] = m
			}
			m[local] = c
		}
	}
	return idx
}

// Lookup 查找场景内角色所属的事件角色
func (x EventIndex) Lookup(scene int, identifierInScene string) (*CharacterInEvent, bool) {
	m, ok := x[scene]
	if !ok {
		return nil, false
	}
	c, ok := m[identifierInScene]
	return c, ok
}
