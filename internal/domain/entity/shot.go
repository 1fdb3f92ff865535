package entity

// FrameType 镜头帧类型
type FrameType string

const (
	FrameFirst FrameType = "first_frame"
	FrameLast  FrameType = "last_frame"
)

// Shot 视频生产的最小单元
type Shot struct {
	Idx           int     `json:"idx" validate:"gte=0"`
	IsLast        bool    `json:"is_last"`
	Duration      string  `json:"duration" validate:"required"`
	FirstFrame    string  `json:"first_frame" validate:"required"`
	VisualContent string  `json:"visual_content" validate:"required"`
	LastFrame     *string `json:"last_frame"`
	SoundEffect   *string `json:"sound_effect"`
	Speaker       *string `json:"speaker"`
	Line          *string `json:"line"`
}

func (s Shot) Position() int { return s.Idx }
func (s Shot) Last() bool    { return s.IsLast }

// Frames 需要生成的帧，尾帧仅在描述非空时出现
func (s Shot) Frames() []FrameType {
	frames := []FrameType{FrameFirst}
	if s.LastFrame != nil && *s.LastFrame != "" {
		frames = append(frames, FrameLast)
	}
	return frames
}

// FrameDescription 返回帧描述
func (s Shot) FrameDescription(f FrameType) string {
	if f == FrameLast && s.LastFrame != nil {
		return *s.LastFrame
	}
	return s.FirstFrame
}

// Reference 参考素材：产物路径加文本描述
type Reference struct {
	Path        string `json:"path"`
	Description string `json:"description"`
	// Portrait 标记角色立绘，用于淘汰策略
	Portrait bool `json:"portrait,omitempty"`
}

// ReferenceSelection 参考图选择结果
type ReferenceSelection struct {
	RefIndices []int  `json:"ref_image_indices" validate:"max=5,dive,gte=0"`
	TextPrompt string `json:"text_prompt" validate:"required"`
}

// ScriptCharacter 剧本中抽取的角色（无小说级登记表时使用）
type ScriptCharacter struct {
	Index          int    `json:"index" validate:"gte=0"`
	Identifier     string `json:"identifier_in_scene" validate:"required"`
	StaticFeatures string `json:"static_features" validate:"required"`
}
