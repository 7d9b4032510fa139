package enum

// EntityType names the subject of a published event.
type EntityType string

const (
	EMAIL    EntityType = "EMAIL"
	DOCUMENT EntityType = "DOCUMENT"
)

func (entityType EntityType) String() string {
	return string(entityType)
}
