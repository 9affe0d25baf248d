package dynamo

// DynamoDB attribute and index names shared by the repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldNotificationID = "notification_id"
	fieldUserID         = "user_id"
	fieldCategory       = "category"
	fieldCreatedAt      = "created_at"
	fieldUpdatedAt      = "updated_at"
	fieldIsRead         = "is_read"
	fieldBundleCount    = "bundle_count"
	fieldToken          = "token"
	fieldHeadID         = "head_id"

	// groupHeadPrefix marks the per (user, category) pointer items kept in
	// the notifications table. They carry no user_id, so the GSIs skip them.
	groupHeadPrefix = "group#"

	indexUserCreatedAt = "user_id-created_at-index"
	indexUser          = "user_id-index"

	// batchWriteLimit is the BatchWriteItem request cap.
	batchWriteLimit = 25
)
