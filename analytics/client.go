package analytics

import (
	"net/url"
	"strings"

	"github.com/mileusna/useragent"
	"golang.org/x/text/language"
)

type clientInfo struct {
	Browser string
	OS      string
	Device  string
	Bot     bool
}

func parseUserAgent(s string) clientInfo {
	ua := useragent.Parse(s)

	info := clientInfo{Browser: ua.Name, OS: ua.OS, Bot: ua.Bot}
	if info.Browser == "" {
		info.Browser = "Unknown"
	}
	if info.OS == "" {
		info.OS = "Unknown"
	}

	switch {
	case ua.Bot:
		info.Device = "bot"
	case ua.Tablet:
		info.Device = "tablet"
	case ua.Mobile:
		info.Device = "mobile"
	default:
		info.Device = "desktop"
	}
	return info
}

// primaryLanguage returns the base language of the most preferred tag, e.g. "pt".
func primaryLanguage(acceptLanguage string) string {
	if acceptLanguage == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return ""
	}
	base, conf := tags[0].Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}

// referrerHost keeps only the host of an external referrer.
func referrerHost(referer, ownHost string) string {
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == strings.ToLower(ownHost) {
		return ""
	}
	return host
}

// ClassifyPath maps a public URL path to the page type it renders.
func ClassifyPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case path == "/" || path == "":
		return PageHome
	case len(parts) == 1:
		switch parts[0] {
		case "about":
			return PageAbout
		case "services":
			return PageServices
		case "blog":
			return PageBlog
		case "case-studies":
			return PageCaseStudies
		case "careers":
			return PageCareers
		case "contact":
			return PageContact
		case "search":
			return PageSearch
		}
	case len(parts) == 2:
		switch parts[0] {
		case "services":
			return PageService
		case "blog":
			return PageBlogPost
		case "case-studies":
			return PageCaseStudy
		case "careers":
			return PageJob
		}
	case len(parts) == 3 && parts[0] == "blog":
		switch parts[1] {
		case "category":
			return PageBlogCategory
		case "tag":
			return PageBlogTag
		}
	}
	return PageOther
}

const (
	PageHome         = "home"
	PageAbout        = "about"
	PageServices     = "services"
	PageService      = "service"
	PageBlog         = "blog"
	PageBlogPost     = "blog_post"
	PageBlogCategory = "blog_category"
	PageBlogTag      = "blog_tag"
	PageCaseStudies  = "case_studies"
	PageCaseStudy    = "case_study"
	PageCareers      = "careers"
	PageJob          = "job"
	PageContact      = "contact"
	PageSearch       = "search"
	PageOther        = "other"
)
