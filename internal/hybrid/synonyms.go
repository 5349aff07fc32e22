package hybrid

import "strings"

type synonymGroup struct {
	key      string
	synonyms []string
}

// sensationSynonyms maps onomatopoeic feel descriptions to words players use
// for the same sensation.
var sensationSynonyms = []synonymGroup{
	{"シュッ", []string{"シュッ", "すっ", "スッ", "滑らか", "スムーズ", "流れる"}},
	{"パチン", []string{"パチン", "ぱちん", "弾く", "はじく", "カチッ", "当たり"}},
	{"ふわっ", []string{"ふわっ", "ふわり", "軽い", "柔らかい", "浮く", "ふんわり"}},
	{"ガツン", []string{"ガツン", "がつん", "強い", "パワー", "厚い当たり", "重い"}},
	{"ピタッ", []string{"ピタッ", "ぴたっ", "止まる", "安定", "コントロール", "ピタリ"}},
	{"ズバッ", []string{"ズバッ", "ずばっ", "ずばん", "鋭い", "切れる", "シャープ"}},
	{"ドンッ", []string{"ドンッ", "どんっ", "踏み込む", "体重", "沈む"}},
	{"スパーン", []string{"スパーン", "すぱーん", "抜ける", "突き抜ける", "伸びる"}},
}

var techniqueSynonyms = []synonymGroup{
	{"サーブ", []string{"サーブ", "サービス", "serve"}},
	{"フォアハンド", []string{"フォアハンド", "フォア", "forehand", "FH"}},
	{"バックハンド", []string{"バックハンド", "バック", "backhand", "BH"}},
	{"ボレー", []string{"ボレー", "volley", "前衛"}},
	{"スマッシュ", []string{"スマッシュ", "smash", "オーバーヘッド"}},
	{"ストローク", []string{"ストローク", "stroke", "グラウンドストローク"}},
	{"スライス", []string{"スライス", "slice", "カット"}},
	{"トップスピン", []string{"トップスピン", "topspin", "スピン", "回転"}},
	{"フラット", []string{"フラット", "flat", "平ら"}},
}

// ExpandTerms returns term followed by the synonyms of every table entry
// whose key occurs in term, or of which term is itself a synonym. The
// result is de-duplicated case-insensitively and its order is fixed.
func ExpandTerms(term string) []string {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}
	lower := strings.ToLower(term)

	out := []string{term}
	seen := map[string]bool{lower: true}
	for _, table := range [][]synonymGroup{sensationSynonyms, techniqueSynonyms} {
		for _, g := range table {
			if !strings.Contains(lower, strings.ToLower(g.key)) && !containsFold(g.synonyms, term) {
				continue
			}
			for _, s := range g.synonyms {
				k := strings.ToLower(s)
				if !seen[k] {
					seen[k] = true
					out = append(out, s)
				}
			}
		}
	}
	return out
}

// dictionaryTerms returns the table keys that occur in text, in table order.
func dictionaryTerms(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, table := range [][]synonymGroup{sensationSynonyms, techniqueSynonyms} {
		for _, g := range table {
			if strings.Contains(lower, strings.ToLower(g.key)) {
				out = append(out, g.key)
				continue
			}
			for _, s := range g.synonyms {
				if len([]rune(s)) > 2 && strings.Contains(lower, strings.ToLower(s)) {
					out = append(out, g.key)
					break
				}
			}
		}
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
