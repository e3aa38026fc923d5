package models

// Settings is the document returned by GET /api/settings.
type Settings struct {
	Profile  ProfileSettings  `json:"profile"`
	Website  WebsiteSettings  `json:"website"`
	Alerts   AlertSettings    `json:"alerts"`
	Advanced AdvancedSettings `json:"advanced"`
}

type ProfileSettings struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type WebsiteSettings struct {
	URL string `json:"url"`
}

type AlertSettings struct {
	EmailAlerts bool `json:"emailAlerts"`
	PhoneAlerts bool `json:"phoneAlerts"`
}

type AdvancedSettings struct {
	DDoSThreshold int `json:"ddosThreshold"`
}

// Settings sections accepted by PUT /api/settings.
const (
	SectionProfile = "profile"
	SectionWebsite = "website"
	SectionAlerts  = "alerts"
)

// SettingsUpdate is the PUT /api/settings body. Only the fields of one
// section are set per request.
type SettingsUpdate struct {
	Username      *string `json:"username,omitempty"`
	Email         *string `json:"email,omitempty"`
	PhoneNumber   *string `json:"phone_number,omitempty"`
	WebsiteURL    *string `json:"website_url,omitempty"`
	DDoSThreshold *int    `json:"ddos_threshold,omitempty"`
	EmailAlerts   *bool   `json:"email_alerts,omitempty"`
	PhoneAlerts   *bool   `json:"phone_alerts,omitempty"`
}

// ResolveIPRequest is the POST /api/get-ip body.
type ResolveIPRequest struct {
	URL string `json:"url"`
}

// ResolveIPReply is the POST /api/get-ip response.
type ResolveIPReply struct {
	IPAddress string `json:"ip_address"`
}
