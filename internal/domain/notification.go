package domain

import "time"

// Category is the closed set of notification kinds.
type Category string

const (
	CategoryWelcome      Category = "welcome"
	CategoryVerification Category = "verification"
	CategoryListing      Category = "listing"
	CategoryRepublish    Category = "republish"
	CategoryEnquiry      Category = "enquiry"
	CategoryReview       Category = "review"
	CategoryBoost        Category = "boost"
	CategoryBroadcast    Category = "broadcast"
	CategoryAlert        Category = "alert"
	CategoryWarning      Category = "warning"
	CategoryFollow       Category = "follow"
	CategoryKYC          Category = "kyc"
	CategoryOther        Category = "other"
)

// Categories lists every valid category in declaration order.
var Categories = []Category{
	CategoryWelcome, CategoryVerification, CategoryListing, CategoryRepublish,
	CategoryEnquiry, CategoryReview, CategoryBoost, CategoryBroadcast,
	CategoryAlert, CategoryWarning, CategoryFollow, CategoryKYC, CategoryOther,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

const DefaultDeliveryProfile = "default"

// Subject is the structured payload describing what a notification is about
// (a listing, usually).
type Subject struct {
	Title    string `json:"title,omitempty" dynamodbav:"title,omitempty"`
	Price    string `json:"price,omitempty" dynamodbav:"price,omitempty"`
	Location string `json:"location,omitempty" dynamodbav:"location,omitempty"`
	Image    string `json:"image,omitempty" dynamodbav:"image,omitempty"`
}

// BundledItem is the lightweight snapshot kept for every event folded into a bundle.
type BundledItem struct {
	ID          string    `json:"id" dynamodbav:"id"`
	RecipientID string    `json:"user_id" dynamodbav:"user_id"`
	Message     string    `json:"message" dynamodbav:"message"`
	SubjectID   string    `json:"action_id,omitempty" dynamodbav:"action_id,omitempty"`
	Subject     *Subject  `json:"property,omitempty" dynamodbav:"property,omitempty"`
	CreatedAt   time.Time `json:"created" dynamodbav:"created_at"`
}

// Notification is the persisted unit of delivery and display.
//
// When IsBundled is false, BundleCount is 1 and BundledItems is empty. When
// IsBundled is true, BundleCount equals len(BundledItems). Once IsRead is
// set the record accepts no further merges.
type Notification struct {
	NotificationID string        `json:"id" dynamodbav:"notification_id"`
	RecipientID    string        `json:"user_id" dynamodbav:"user_id"`
	Message        string        `json:"message" dynamodbav:"message"`
	Category       Category      `json:"type" dynamodbav:"category"`
	MediaKey       string        `json:"mediakey,omitempty" dynamodbav:"media_key,omitempty"`
	ActorName      string        `json:"user,omitempty" dynamodbav:"actor_name,omitempty"`
	Button         string        `json:"button,omitempty" dynamodbav:"button,omitempty"`
	Subject        *Subject      `json:"property,omitempty" dynamodbav:"property,omitempty"`
	Status         string        `json:"status,omitempty" dynamodbav:"status,omitempty"`
	SubjectID      string        `json:"action_id,omitempty" dynamodbav:"action_id,omitempty"`
	Sound          string        `json:"sound" dynamodbav:"sound"`
	Vibration      string        `json:"vibration" dynamodbav:"vibration"`
	IsBundled      bool          `json:"is_bundled" dynamodbav:"is_bundled"`
	BundleCount    int           `json:"bundle_count" dynamodbav:"bundle_count"`
	BundleKey      string        `json:"bundle_key,omitempty" dynamodbav:"bundle_key,omitempty"`
	BundledItems   []BundledItem `json:"bundled_items,omitempty" dynamodbav:"bundled_items,omitempty"`
	IsRead         bool          `json:"is_read" dynamodbav:"is_read"`
	CreatedAt      time.Time     `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time     `json:"updated" dynamodbav:"updated_at"`
}

// Snapshot returns the bundled-item view of an individual record.
func (n *Notification) Snapshot() BundledItem {
	return BundledItem{
		ID:          n.NotificationID,
		RecipientID: n.RecipientID,
		Message:     n.Message,
		SubjectID:   n.SubjectID,
		Subject:     n.Subject,
		CreatedAt:   n.CreatedAt,
	}
}

// Items returns the events this record stands for: its bundled items when
// bundled, otherwise a single snapshot of itself.
func (n *Notification) Items() []BundledItem {
	if n.IsBundled {
		return n.BundledItems
	}
	return []BundledItem{n.Snapshot()}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (n *Notification) Clone() *Notification {
	c := *n
	if n.Subject != nil {
		s := *n.Subject
		c.Subject = &s
	}
	if n.BundledItems != nil {
		c.BundledItems = make([]BundledItem, len(n.BundledItems))
		copy(c.BundledItems, n.BundledItems)
	}
	return &c
}

// Intent is a request from a domain collaborator to notify a recipient.
type Intent struct {
	RecipientID string   `json:"user_id" validate:"required"`
	Message     string   `json:"message" validate:"required"`
	Category    Category `json:"type" validate:"required,category"`
	MediaKey    string   `json:"mediakey,omitempty"`
	ActorName   string   `json:"user,omitempty"`
	Button      string   `json:"button,omitempty"`
	Subject     *Subject `json:"property,omitempty"`
	Status      string   `json:"status,omitempty"`
	SubjectID   string   `json:"action_id,omitempty"`
	Sound       string   `json:"sound,omitempty"`
	Vibration   string   `json:"vibration,omitempty"`
}

// OutcomeAction tags what the planner did with a group of intents.
type OutcomeAction string

const (
	ActionCreated OutcomeAction = "created"
	ActionUpdated OutcomeAction = "updated"
	ActionSkipped OutcomeAction = "skipped"
)

// Outcome reports the result for one group of intents. Events holds the
// indexes of the input intents the outcome covers.
type Outcome struct {
	RecipientID  string        `json:"user_id"`
	Category     Category      `json:"type,omitempty"`
	Action       OutcomeAction `json:"action"`
	Events       []int         `json:"events"`
	Notification *Notification `json:"notification,omitempty"`
	Err          error         `json:"-"`
}

// Success reports whether the outcome carries no error.
func (o Outcome) Success() bool { return o.Err == nil }
