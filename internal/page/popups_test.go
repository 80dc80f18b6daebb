package page

import "testing"

func TestShouldForceHide(t *testing.T) {
	const vw, vh = 1920.0, 1080.0

	cases := []struct {
		name      string
		candidate overlayCandidate
		want      bool
	}{
		{
			name:      "fullscreen fixed overlay",
			candidate: overlayCandidate{Position: "fixed", Width: 1920, Height: 1080},
			want:      true,
		},
		{
			name:      "absolute modal covering most of the page",
			candidate: overlayCandidate{Position: "absolute", Width: 1200, Height: 700},
			want:      true,
		},
		{
			name:      "static hero image, same size",
			candidate: overlayCandidate{Position: "static", Width: 1920, Height: 1080},
			want:      false,
		},
		{
			name:      "fixed cookie bar, wide but short",
			candidate: overlayCandidate{Position: "fixed", Width: 1920, Height: 120},
			want:      false,
		},
		{
			name:      "fixed side drawer, tall but narrow",
			candidate: overlayCandidate{Position: "fixed", Width: 400, Height: 1080},
			want:      false,
		},
		{
			name:      "exactly half is not enough",
			candidate: overlayCandidate{Position: "fixed", Width: 960, Height: 540},
			want:      false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := shouldForceHide(tc.candidate, vw, vh); got != tc.want {
				t.Errorf("shouldForceHide(%+v) = %v, want %v", tc.candidate, got, tc.want)
			}
		})
	}
}

func TestShouldForceHideZeroViewport(t *testing.T) {
	c := overlayCandidate{Position: "fixed", Width: 1920, Height: 1080}
	if shouldForceHide(c, 0, 0) {
		t.Fatal("viewport 为零时不应隐藏任何元素")
	}
}
