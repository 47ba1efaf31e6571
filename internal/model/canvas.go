package model

import "time"

// ImagePlacement 캔버스에 배치된 이미지
type ImagePlacement struct {
	URL      string  `json:"url"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
}

// TextItem 캔버스 텍스트 노트
type TextItem struct {
	ID           string  `json:"id"`
	Text         string  `json:"text"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	FontSize     float64 `json:"fontSize"`
	FontFamily   string  `json:"fontFamily"`
	Fill         string  `json:"fill"`
	Rotation     float64 `json:"rotation"`
	IsPythonCode bool    `json:"isPythonCode"`
}

// CanvasContent Canvas.Content 컬럼에 저장되는 전체 상태
type CanvasContent struct {
	Images    []ImagePlacement `json:"images"`
	TextItems []TextItem       `json:"textItems"`
}

// IsEmpty 이미지와 텍스트가 모두 없는지
func (c CanvasContent) IsEmpty() bool {
	return len(c.Images) == 0 && len(c.TextItems) == 0
}

// Normalize nil 슬라이스를 빈 슬라이스로 바꿔 JSON 에서 null 대신 [] 가 되게 한다
func (c CanvasContent) Normalize() CanvasContent {
	if c.Images == nil {
		c.Images = []ImagePlacement{}
	}
	if c.TextItems == nil {
		c.TextItems = []TextItem{}
	}
	return c
}

// Clone 깊은 복사
func (c CanvasContent) Clone() CanvasContent {
	out := CanvasContent{
		Images:    make([]ImagePlacement, len(c.Images)),
		TextItems: make([]TextItem, len(c.TextItems)),
	}
	copy(out.Images, c.Images)
	copy(out.TextItems, c.TextItems)
	return out
}

// CanvasSnapshot GET /canvas 응답
type CanvasSnapshot struct {
	Images       []ImagePlacement `json:"images"`
	TextItems    []TextItem       `json:"textItems"`
	LastModified int64            `json:"lastModified"` // epoch ms
	Version      int64            `json:"version"`
}

// Content 스냅샷의 상태 부분
func (s CanvasSnapshot) Content() CanvasContent {
	return CanvasContent{Images: s.Images, TextItems: s.TextItems}
}

// CanvasSaveResult PUT /canvas 응답
type CanvasSaveResult struct {
	Success      bool  `json:"success"`
	LastModified int64 `json:"lastModified"`
	Version      int64 `json:"version"`
}

// EpochMillis time.Time -> epoch ms
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}
