package referrers

import "strings"

// Display labels for well known referrer hosts
var knownReferrers = map[string]string{
	// Social media
	"x.com":           "X/Twitter",
	"twitter.com":     "X/Twitter",
	"t.co":            "X/Twitter",
	"facebook.com":    "Facebook",
	"fb.com":          "Facebook",
	"instagram.com":   "Instagram",
	"linkedin.com":    "LinkedIn",
	"lnkd.in":         "LinkedIn",
	"reddit.com":      "Reddit",
	"threads.net":     "Threads",
	"bsky.app":        "Bluesky",
	"mastodon.social": "Mastodon",
	"youtube.com":     "YouTube",
	"youtu.be":        "YouTube",

	// Tech communities
	"news.ycombinator.com": "Hacker News",
	"lobste.rs":            "Lobsters",
	"dev.to":               "DEV Community",
	"hashnode.com":         "Hashnode",
	"medium.com":           "Medium",
	"github.com":           "GitHub",
	"stackoverflow.com":    "Stack Overflow",

	// Email
	"mail.google.com":       "Gmail",
	"com.google.android.gm": "Gmail",
	"outlook.live.com":      "Outlook",
	"mail.proton.me":        "Proton Mail",
}

// Label returns a display label for a normalised source name. Search engine
// names pass through, hosts and their subdomains are looked up, and anything
// else is returned unchanged.
func Label(source string) string {
	host := strings.ToLower(source)
	for host != "" {
		if name, ok := knownReferrers[host]; ok {
			return name
		}
		_, parent, found := strings.Cut(host, ".")
		if !found || !strings.Contains(parent, ".") {
			break
		}
		host = parent
	}
	return source
}
