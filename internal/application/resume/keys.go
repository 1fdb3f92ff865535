package resume

import (
	"fmt"

	"novel2video/internal/domain/entity"
)

// 工作目录下的单元键，均可由单元身份直接推导
const (
	NovelKey      = "novel/novel.txt"
	CompressedKey = "novel/compressed.txt"
	PlannedKey    = "script/planned_script.txt"
	EnhancedKey   = "script/enhanced_script.txt"
)

func ChunkKey(i int) string           { return fmt.Sprintf("novel/chunk_%d.txt", i) }
func CompressedChunkKey(i int) string { return fmt.Sprintf("novel/chunk_%d_compressed.txt", i) }
func EventKey(i int) string           { return fmt.Sprintf("events/event_%d.json", i) }
func RelevantChunksKey(i int) string  { return fmt.Sprintf("relevant_chunks/event_%d.json", i) }
func SceneKey(e, s int) string        { return fmt.Sprintf("scenes/event_%d/scene_%d.json", e, s) }
func EventCharactersKey(e int) string { return fmt.Sprintf("characters/event_level/event_%d.json", e) }
func NovelCharactersKey(e int) string {
	return fmt.Sprintf("characters/novel_level/after_event_%d.json", e)
}

func BasePortraitKey(idx int) string { return fmt.Sprintf("portraits/base/character_%d.png", idx) }
func ScenePortraitKey(e, s, idx int) string {
	return fmt.Sprintf("portraits/event_%d/scene_%d/character_%d.png", e, s, idx)
}

// ScriptDir 单个剧本（场景）的视频工作目录
func ScriptDir(e, s int) string { return fmt.Sprintf("videos/event_%d/scene_%d", e, s) }

// 以下键相对 ScriptDir
func ScriptCharactersKey(dir string) string { return dir + "/characters.json" }
func ScriptPortraitKey(dir string, idx int) string {
	return fmt.Sprintf("%s/characters/character_%d.png", dir, idx)
}
func ShotKey(dir string, k int) string { return fmt.Sprintf("%s/shots/shot_%d.json", dir, k) }
func FrameReferenceKey(dir string, k int, f entity.FrameType) string {
	return fmt.Sprintf("%s/shot_%d_%s_reference.json", dir, k, f)
}
func CandidateDir(dir string, k int, f entity.FrameType) string {
	return fmt.Sprintf("%s/candidates/shot_%d_%s", dir, k, f)
}
func FrameKey(dir string, k int, f entity.FrameType) string {
	return fmt.Sprintf("%s/shot_%d_%s.png", dir, k, f)
}
func VideoKey(dir string, k int) string { return fmt.Sprintf("%s/shot_%d.mp4", dir, k) }

// IdeaScriptDir 创意模式下剧本的视频工作目录
const IdeaScriptDir = "videos/idea"

func BasePortraitDescriptionKey(idx int) string {
	return fmt.Sprintf("portraits/base/character_%d.json", idx)
}
func BasePortraitCandidateDir(idx int) string {
	return fmt.Sprintf("portraits/base/candidates/character_%d", idx)
}
func ScenePortraitCandidateDir(e, s, idx int) string {
	return fmt.Sprintf("portraits/event_%d/scene_%d/candidates/character_%d", e, s, idx)
}
func ScriptPortraitCandidateDir(dir string, idx int) string {
	return fmt.Sprintf("%s/characters/candidates/character_%d", dir, idx)
}
