package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// DeclareTopology declares the build queue and its dead-letter queue. Publisher
// and consumer both call it so the queue arguments always match.
func DeclareTopology(ch *amqp.Channel, queue string) error {
	dlq := queue + ".dlq"

	// DLQ
	if _, err := ch.QueueDeclare(
		dlq,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	// Main queue: dead-letter to DLQ on reject/nack(requeue=false)
	_, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlq,
		},
	)
	return err
}
