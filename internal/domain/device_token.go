package domain

import "time"

const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
	PlatformWeb     = "web"
)

// DeviceToken is a push-provider token owned by a recipient. A recipient may
// hold several (one per device).
type DeviceToken struct {
	Token       string    `json:"-" dynamodbav:"token"`
	RecipientID string    `json:"user_id" dynamodbav:"user_id"`
	Platform    string    `json:"platform" dynamodbav:"platform"`
	DeviceID    string    `json:"device_id,omitempty" dynamodbav:"device_id,omitempty"`
	CreatedAt   time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt   time.Time `json:"updated" dynamodbav:"updated_at"`
}

type RegisterTokenRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"required,oneof=android ios web"`
	DeviceID string `json:"device_id"`
}
