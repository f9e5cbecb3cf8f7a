package trigger

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"patternmatch/types"
)

// PublishAssetFinalized emits one asset-finalized event. Producers are the
// upload pipeline and test fixtures.
func PublishAssetFinalized(publisher message.Publisher, ev types.AssetFinalized) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal asset event for %s: %w", ev.Path, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := publisher.Publish(TopicAssetFinalized, msg); err != nil {
		return fmt.Errorf("publish asset event for %s: %w", ev.Path, err)
	}
	return nil
}
