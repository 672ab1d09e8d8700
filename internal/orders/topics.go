package orders

const (
	TopicOrderCreated   = "order.created"
	TopicOrderPaid      = "order.paid"
	TopicOrderCanceled  = "order.canceled"
	TopicOrderConfirmed = "order.confirmed"
	TopicOrderCompleted = "order.completed"
	TopicStockLow       = "stock.low"
)

// Partition key = order_id (or product_id for stock events) so events of one
// entity stay ordered.
func PartitionKey(id string) []byte { return []byte(id) }

// StatusEvent maps a target status to its event type and topic.
func StatusEvent(to Status) (eventType, topic string) {
	switch to {
	case StatusPaid:
		return EventOrderPaid, TopicOrderPaid
	case StatusCanceled:
		return EventOrderCanceled, TopicOrderCanceled
	case StatusConfirmed:
		return EventOrderConfirmed, TopicOrderConfirmed
	case StatusCompleted:
		return EventOrderCompleted, TopicOrderCompleted
	}
	return "", ""
}
