package utils

// Server-side strings are limited to error titles and the health probe.
// Everything a user edits lives in the client.

var SupportedLocales = []string{"en", "zh"}

var translations = map[string]map[string]string{
	"en": {
		"health.ok":          "ok",
		"error.invalid":      "Invalid request",
		"error.unauthorized": "Login required",
		"error.forbidden":    "Not allowed",
		"error.not_found":    "Not found",
		"error.conflict":     "Someone else changed this first",
		"error.internal":     "Something went wrong",
	},
	"zh": {
		"health.ok":          "好的",
		"error.invalid":      "请求无效",
		"error.unauthorized": "请先登录",
		"error.forbidden":    "没有权限",
		"error.not_found":    "未找到",
		"error.conflict":     "内容已被他人修改",
		"error.internal":     "服务器出错了",
	},
}

// T returns the translated string for key in locale; falls back to English, then the key.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if v, ok := translations["en"][key]; ok {
		return v
	}
	return key
}
