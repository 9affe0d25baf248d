package domain

// PushMessage is the provider-neutral payload sent to device tokens.
type PushMessage struct {
	Title string
	Body  string
	Sound string
	Data  map[string]string
}

// PushResult is the per-token outcome of a multicast send. Invalid is set
// when the provider reports the token as permanently unusable.
type PushResult struct {
	Token   string
	Err     error
	Invalid bool
}

// PushBatchResult summarises a multicast send.
type PushBatchResult struct {
	SuccessCount int
	FailureCount int
	Results      []PushResult
}
