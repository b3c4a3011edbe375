package pagetrack

import (
	"bytes"
	"image/png"
	"testing"
)

func TestRenderBadge(t *testing.T) {
	b, err := renderBadge("visits", "1,234")
	if err != nil {
		t.Fatalf("renderBadge failed: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("badge is not a PNG: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dy() != badgeHeight {
		t.Errorf("height = %d, want %d", bounds.Dy(), badgeHeight)
	}
	// 7px glyphs: "visits" (6) + "1,234" (5) plus padding on both parts.
	if want := 11*7 + 4*badgePadding; bounds.Dx() != want {
		t.Errorf("width = %d, want %d", bounds.Dx(), want)
	}
}
