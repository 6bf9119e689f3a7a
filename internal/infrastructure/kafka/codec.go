package kafka

import (
	"time"

	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/jimlawless/whereami"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EventCodec сериализует AssetEvent в protobuf Struct.
// Схема без .proto файла: потребитель читает поля по именам.
type EventCodec struct{}

func NewEventCodec() *EventCodec {
	return &EventCodec{}
}

func (EventCodec) EncodeAssetEvent(event *usecase.AssetEvent) ([]byte, error) {
	fields := map[string]any{
		"event_id":    event.EventID,
		"event_type":  string(event.Type),
		"occurred_at": event.OccurredAt.UTC().Format(time.RFC3339Nano),
	}

	if a := event.Asset; a != nil {
		fields["asset"] = map[string]any{
			"id":               a.ID,
			"tenant_id":        a.TenantID,
			"product_id":       a.ProductID,
			"sku":              a.Sku,
			"kind":             string(a.Kind),
			"storage_key":      a.StorageKey,
			"thumbnail_key":    a.ThumbnailKey,
			"content_type":     a.ContentType,
			"size":             a.Size,
			"embedding_status": string(a.EmbeddingStatus),
		}
	}

	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	payload, err := proto.Marshal(msg)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return payload, nil
}

// DecodeAssetEvent разбирает payload обратно в Struct.
func (EventCodec) DecodeAssetEvent(payload []byte) (*structpb.Struct, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(payload, &msg); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &msg, nil
}
