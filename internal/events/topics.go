package events

// Topic constants for domain events emitted by the storefront.
const (
	TopicDesignGenerated  = "design.generated"
	TopicDesignFailed     = "design.failed"
	TopicCheckoutStarted  = "checkout.started"
	TopicPaymentSucceeded = "payment.succeeded"
	TopicPaymentFailed    = "payment.failed"
)

// DefaultTopics returns the canonical list of topics.
func DefaultTopics() []string {
	return []string{
		TopicDesignGenerated,
		TopicDesignFailed,
		TopicCheckoutStarted,
		TopicPaymentSucceeded,
		TopicPaymentFailed,
	}
}
