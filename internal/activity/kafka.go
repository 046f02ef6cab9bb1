package activity

import (
	"context"

	"github.com/govlink/govlink/internal/mykafka"
)

type KafkaSink struct {
	Pub   mykafka.Publisher
	Topic string
}

func (k *KafkaSink) Record(ctx context.Context, e Event) error {
	key := e.PrincipalID
	if key == "" {
		key = e.Partition + ":" + e.Email
	}
	return k.Pub.PublishEvent(ctx, k.Topic, key, e)
}
