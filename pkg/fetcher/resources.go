package fetcher

import (
	"net/http"
	"net/url"

	"github.com/hervehildenbrand/ddos-radar/pkg/models"
)

// Resource names, used as poller names, cache keys and metric labels.
const (
	NameBlacklist          = "blacklist"
	NameAttackLogs         = "attack-logs"
	NameChatHistory        = "chat-history"
	NameLiveActivity       = "live-activity-chart"
	NameTrafficLog         = "traffic-log"
	NameDashboardStats     = "dashboard-stats"
	NameTrafficChart       = "traffic-chart-data"
	NameAttackDistribution = "attack-distribution-chart"
	NameSettings           = "settings"
)

var (
	Blacklist          = Resource{Name: NameBlacklist, Method: http.MethodGet, Path: "/api/blacklist"}
	AttackLogs         = Resource{Name: NameAttackLogs, Method: http.MethodGet, Path: "/api/attack-logs"}
	ChatHistory        = Resource{Name: NameChatHistory, Method: http.MethodGet, Path: "/api/chat-history"}
	LiveActivity       = Resource{Name: NameLiveActivity, Method: http.MethodGet, Path: "/api/live-activity-chart"}
	TrafficLog         = Resource{Name: NameTrafficLog, Method: http.MethodGet, Path: "/api/traffic-log"}
	DashboardStats     = Resource{Name: NameDashboardStats, Method: http.MethodGet, Path: "/api/dashboard-stats"}
	TrafficChart       = Resource{Name: NameTrafficChart, Method: http.MethodGet, Path: "/api/traffic-chart-data"}
	AttackDistribution = Resource{Name: NameAttackDistribution, Method: http.MethodGet, Path: "/api/attack-distribution-chart"}
	Settings           = Resource{Name: NameSettings, Method: http.MethodGet, Path: "/api/settings"}
)

// Unblock removes ip from the blacklist.
func Unblock(ip string) Resource {
	return Resource{Name: "unblock", Method: http.MethodDelete, Path: "/api/blacklist/" + url.PathEscape(ip)}
}

// Chatbot submits a user query to the assistant.
func Chatbot(query string) Resource {
	return Resource{Name: "chatbot", Method: http.MethodPost, Path: "/api/chatbot", Body: models.ChatQuery{Query: query}}
}

// UpdateSettings writes one settings section.
func UpdateSettings(update models.SettingsUpdate) Resource {
	return Resource{Name: "update-settings", Method: http.MethodPut, Path: "/api/settings", Body: update}
}

// ResolveIP asks the server for the origin IP behind a site URL.
func ResolveIP(siteURL string) Resource {
	return Resource{Name: "get-ip", Method: http.MethodPost, Path: "/api/get-ip", Body: models.ResolveIPRequest{URL: siteURL}}
}
