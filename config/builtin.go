package config

import "github.com/robertmeta/feed-push/model"

// Builtin returns the profiles that need no profiles file.
func Builtin() []model.Profile {
	return []model.Profile{
		{
			Name:              "trumpstruth",
			FeedURL:           "https://www.trumpstruth.org/feed",
			Mode:              model.ModeQuote,
			Nickname:          "📩Trump Truth快讯",
			Banner:            "♥️ Trump Truth 每日速递",
			Label:             "【懂王】：",
			ForwardTag:        "【转发贴】",
			NoTextPlaceholder: "无文字",
			SubjectTemplate:   "⏰ Trump Truth 每日资讯 | {{.Date}}",
			LinkText:          "查看原文 →",
			EmptyDigestText:   "暂无可用的Trump Truth资讯",
		},
	}
}
