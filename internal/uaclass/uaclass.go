// Package uaclass classifies raw User-Agent strings into device and bot
// categories. Every classifier is an ordered rule table; the first rule whose
// predicate matches the lowercased User-Agent wins.
package uaclass

import "strings"

const Unknown = "Unknown"

const (
	Desktop = "Desktop"
	Mobile  = "Mobile"
	Tablet  = "Tablet"
)

type Device struct {
	Type    string `json:"deviceType"`
	OS      string `json:"os"`
	Browser string `json:"browser"`
}

type Bot struct {
	IsBot    bool   `json:"isBot"`
	Category string `json:"category"`
	Name     string `json:"name"`
}

// Human is the classification for a User-Agent that matches no bot rule.
var Human = Bot{IsBot: false, Category: "Human", Name: "Human User"}

// Rule pairs a predicate over the lowercased User-Agent with a label.
type Rule struct {
	Match func(ua string) bool
	Label string
}

type BotRule struct {
	Match func(ua string) bool
	Bot   Bot
}

// anyOf matches when the User-Agent contains at least one token.
func anyOf(tokens ...string) func(string) bool {
	return func(ua string) bool {
		for _, t := range tokens {
			if strings.Contains(ua, t) {
				return true
			}
		}
		return false
	}
}

var DeviceRules = []Rule{
	{anyOf("tablet", "ipad"), Tablet},
	{anyOf("mobile", "iphone", "ipod"), Mobile},
}

// iOS precedes macOS: iPhone and iPad agents also carry "Mac OS X".
var OSRules = []Rule{
	{anyOf("windows"), "Windows"},
	{anyOf("iphone", "ipad", "ipod"), "iOS"},
	{anyOf("mac os", "macintosh"), "macOS"},
	{anyOf("android"), "Android"},
	{anyOf("linux"), "Linux"},
}

// Chromium derivatives advertise "Chrome" and "Safari", so they go first.
var BrowserRules = []Rule{
	{anyOf("edg"), "Edge"},
	{anyOf("opr/", "opera"), "Opera"},
	{anyOf("firefox", "fxios"), "Firefox"},
	{anyOf("chrome", "crios", "chromium"), "Chrome"},
	{anyOf("safari"), "Safari"},
}

// "facebookexternalhit" and "facebook" share a result; order still matters
// for generic tokens like "bot" which must lose to the named crawlers.
var BotRules = []BotRule{
	{anyOf("reddit"), Bot{true, "Social Media", "Reddit Bot"}},
	{anyOf("facebookexternalhit", "facebook"), Bot{true, "Social Media", "Facebook Bot"}},
	{anyOf("twitter"), Bot{true, "Social Media", "Twitter Bot"}},
	{anyOf("discord"), Bot{true, "Social Media", "Discord Bot"}},
	{anyOf("google"), Bot{true, "Search Engine", "Google Bot"}},
	{anyOf("bing"), Bot{true, "Search Engine", "Bing Bot"}},
	{anyOf("yandex"), Bot{true, "Search Engine", "Yandex Bot"}},
	{anyOf("bot"), Bot{true, "General", "Generic Bot"}},
	{anyOf("crawl"), Bot{true, "General", "Crawler"}},
	{anyOf("spider"), Bot{true, "General", "Spider"}},
	{anyOf("pinterest"), Bot{true, "Social Media", "Pinterest Bot"}},
	{anyOf("linkedin"), Bot{true, "Social Media", "LinkedIn Bot"}},
	{anyOf("slack"), Bot{true, "Social Media", "Slack Bot"}},
	{anyOf("quora"), Bot{true, "QA Platform", "Quora Bot"}},
	{anyOf("stackoverflow"), Bot{true, "QA Platform", "Stack Overflow Bot"}},
	{anyOf("whatsapp"), Bot{true, "Messaging", "WhatsApp Bot"}},
	{anyOf("telegram"), Bot{true, "Messaging", "Telegram Bot"}},
}

func first(rules []Rule, ua, fallback string) string {
	for _, r := range rules {
		if r.Match(ua) {
			return r.Label
		}
	}
	return fallback
}

// ClassifyDevice maps a User-Agent to device type, OS and browser.
func ClassifyDevice(userAgent string) Device {
	ua := strings.ToLower(userAgent)
	return Device{
		Type:    first(DeviceRules, ua, Desktop),
		OS:      first(OSRules, ua, Unknown),
		Browser: first(BrowserRules, ua, Unknown),
	}
}

// ClassifyBot maps a User-Agent to a bot category and name, or Human.
func ClassifyBot(userAgent string) Bot {
	ua := strings.ToLower(userAgent)
	for _, r := range BotRules {
		if r.Match(ua) {
			return r.Bot
		}
	}
	return Human
}
