package utils

import (
	"sort"
	"strconv"
	"strings"
)

// DetermineLocale picks the response locale. An explicit queryLang wins, then the
// highest-weighted Accept-Language entry, then def. Regional tags fall back to their base
// language ("zh-CN" matches "zh"). The result is always one of supported when supported is
// non-empty.
func DetermineLocale(queryLang, acceptLang string, supported []string, def string) string {
	sup := make(map[string]bool, len(supported))
	for _, s := range supported {
		sup[strings.ToLower(s)] = true
	}
	match := func(tag string) (string, bool) {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			return "", false
		}
		if sup[tag] {
			return tag, true
		}
		if base, _, found := strings.Cut(tag, "-"); found && sup[base] {
			return base, true
		}
		return "", false
	}

	if l, ok := match(queryLang); ok {
		return l
	}
	if l, ok := bestAccepted(acceptLang, match); ok {
		return l
	}
	if l, ok := match(def); ok {
		return l
	}
	if len(supported) > 0 {
		return strings.ToLower(supported[0])
	}
	return "en"
}

type weighted struct {
	locale string
	q      float64
}

func bestAccepted(header string, match func(string) (string, bool)) (string, bool) {
	var cands []weighted
	for _, part := range strings.Split(header, ",") {
		tag, params, _ := strings.Cut(part, ";")
		q := 1.0
		for _, p := range strings.Split(params, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
			if !ok || strings.TrimSpace(k) != "q" {
				continue
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil || f < 0 || f > 1 {
				f = 0
			}
			q = f
		}
		if q == 0 {
			continue
		}
		if l, ok := match(tag); ok {
			cands = append(cands, weighted{l, q})
		}
	}
	if len(cands) == 0 {
		return "", false
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].q > cands[j].q })
	return cands[0].locale, true
}
