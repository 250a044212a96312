package domain

type Profile struct {
	ID        string `json:"id"`
	Username  string `json:"username,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// DisplayName picks the best human label: contact name, full name, username.
func (p *Profile) DisplayName(contactName string) string {
	if contactName != "" {
		return contactName
	}
	if p == nil {
		return ""
	}
	if p.FullName != "" {
		return p.FullName
	}
	return p.Username
}

type Contact struct {
	OwnerID       string `bson:"owner_id" json:"owner_id"`
	ContactUserID string `bson:"contact_user_id" json:"contact_user_id"`
	ContactName   string `bson:"contact_name,omitempty" json:"contact_name,omitempty"`
}

type BlockStatus struct {
	IBlocked    bool `json:"i_blocked_them"`
	TheyBlocked bool `json:"they_blocked_me"`
}

func (b BlockStatus) CanMessage() bool { return !b.IBlocked && !b.TheyBlocked }

type DeviceToken struct {
	UserID   string `bson:"user_id" json:"user_id"`
	DeviceID string `bson:"device_id" json:"device_id"`
	FCMToken string `bson:"fcm_token" json:"fcm_token"`
	Platform string `bson:"platform" json:"platform"`
}
