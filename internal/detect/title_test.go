package detect

import "testing"

func TestNormalizeTitleIdempotent(t *testing.T) {
	inputs := []string{
		"Coussin Velours Vert 60x60 - GiFi",
		"Apple AirPods Pro (2e génération) : Amazon.fr",
		"CAFÉ MOULU   Bio, 250g | Carrefour",
		"t-shirt enfant",
	}
	for _, in := range inputs {
		once := NormalizeTitle(in)
		twice := NormalizeTitle(once)
		if once != twice {
			t.Errorf("NormalizeTitle 不幂等: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestNormalizeTitleStripsSiteSuffix(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Coussin Velours Vert - GiFi", "coussin velours vert"},
		{"Machine à café | Carrefour", "machine à café"},
		{"Lampe LED : Amazon.fr", "lampe led"},
		{"Tabouret - Pliant - GiFi", "tabouret pliant"},
	}
	for _, tc := range cases {
		if got := NormalizeTitle(tc.in); got != tc.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeTitleBoundaries(t *testing.T) {
	if got := NormalizeTitle("Coussin60x60cm"); got != "coussin 60 x 60 cm" {
		t.Errorf("字母数字边界应插入空格: %q", got)
	}
	if got := NormalizeTitle("Lot de 3 bocaux (1,5L)"); got != "lot de 3 bocaux 1 5 l" {
		t.Errorf("标点应被移除: %q", got)
	}
}

func TestJaccardSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"coussin velours vert", "coussin vert velours 60"},
		{"a b c", "c d e"},
		{"", "mot"},
	}
	for _, pair := range pairs {
		ab := Jaccard(pair[0], pair[1])
		ba := Jaccard(pair[1], pair[0])
		if ab != ba {
			t.Errorf("Jaccard(%q,%q)=%v != Jaccard 反向=%v", pair[0], pair[1], ab, ba)
		}
	}
	if got := Jaccard("un deux trois", "un deux trois"); got != 1.0 {
		t.Errorf("相同集合应为 1.0, got %v", got)
	}
	if got := Jaccard("a b", "c d"); got != 0.0 {
		t.Errorf("不相交集合应为 0.0, got %v", got)
	}
}

func TestTitleMatches(t *testing.T) {
	cases := []struct {
		name  string
		item  string
		title string
		want  bool
	}{
		{
			name:  "gifi suffix on page title",
			item:  "Coussin velours vert 60x60",
			title: "Coussin Velours Vert 60x60 - GiFi",
			want:  true,
		},
		{
			name:  "containment in longer title",
			item:  "AirPods Pro 2",
			title: "Apple AirPods Pro 2 avec boîtier de charge MagSafe : Amazon.fr",
			want:  true,
		},
		{
			name:  "short name mostly present",
			item:  "table basse chêne",
			title: "Table basse ronde en chêne massif 90cm - promo - GiFi",
			want:  true,
		},
		{
			name:  "completely different product",
			item:  "Coussin velours vert",
			title: "Aspirateur balai 2-en-1 sans fil - GiFi",
			want:  false,
		},
		{
			name:  "empty stored name never blocks",
			item:  "",
			title: "N'importe quoi",
			want:  true,
		},
		{
			name:  "empty page title fails a named item",
			item:  "Coussin vert",
			title: "",
			want:  false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TitleMatches(tc.item, tc.title); got != tc.want {
				t.Errorf("TitleMatches(%q, %q) = %v, want %v", tc.item, tc.title, got, tc.want)
			}
		})
	}
}
