package textsplit

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitCoverage(t *testing.T) {
	para := "雨夜，林默推开客栈的门。掌柜抬头看了他一眼，没有说话。\n\n" +
		"The rain kept falling. Someone laughed upstairs! Was it her?\n" +
		"他在角落坐下，要了一壶酒；窗外的灯笼摇晃着。"
	long := strings.Repeat(para, 40)
	noBoundary := strings.Repeat("abcdefghij", 97)

	tests := []struct {
		name      string
		text      string
		chunkSize int
		overlap   int
	}{
		{"mixed text", long, 200, 40},
		{"no overlap", long, 150, 0},
		{"large overlap", long, 100, 90},
		{"no boundaries", noBoundary, 64, 16},
		{"single chunk", "short text", 100, 10},
		{"exact size", strings.Repeat("x", 50), 50, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := Split(tt.text, tt.chunkSize, tt.overlap)
			if err != nil {
				t.Fatalf("Split: %v", err)
			}
			if len(chunks) == 0 {
				t.Fatal("no chunks")
			}
			for i, c := range chunks {
				if n := utf8.RuneCountInString(c); n > tt.chunkSize {
					t.Errorf("chunk %d has %d runes, limit %d", i, n, tt.chunkSize)
				}
			}
			for i := 1; i < len(chunks); i++ {
				prev := []rune(chunks[i-1])
				cur := []rune(chunks[i])
				if len(cur) <= tt.overlap {
					t.Fatalf("chunk %d shorter than overlap", i)
				}
				tail := string(prev[len(prev)-tt.overlap:])
				head := string(cur[:tt.overlap])
				if tail != head {
					t.Errorf("chunk %d overlap mismatch: %q vs %q", i, tail, head)
				}
			}
			if got := Reconstruct(chunks, tt.overlap); got != tt.text {
				t.Errorf("reconstruction differs: got %d runes, want %d",
					utf8.RuneCountInString(got), utf8.RuneCountInString(tt.text))
			}
		})
	}
}

func TestSplitPrefersParagraphBoundary(t *testing.T) {
	text := strings.Repeat("a", 60) + "\n\n" + strings.Repeat("b", 60)
	chunks, err := Split(text, 80, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(chunks[0], "\n\n") {
		t.Errorf("first chunk should end at the paragraph break, got %q", chunks[0])
	}
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("一二三四五。六七八九十！", 30)
	a, _ := Split(text, 50, 10)
	b, _ := Split(text, 50, 10)
	if strings.Join(a, "|") != strings.Join(b, "|") {
		t.Fatal("split is not deterministic")
	}
}

func TestSplitInvalidArgs(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int
		overlap   int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Split("text", tt.chunkSize, tt.overlap); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSplitEmpty(t *testing.T) {
	chunks, err := Split("", 10, 2)
	if err != nil || chunks != nil {
		t.Fatalf("Split(\"\") = %v, %v", chunks, err)
	}
}
