package spoke

import (
	"strconv"
)

// EntityId identifies an entity within a Storage. Ids are assigned sequentially
// and never reused. The zero value means "no entity".
type EntityId uint32

const NoEntityId EntityId = 0

func (e EntityId) String() string {
	return strconv.Itoa(int(e))
}

// InstanceId identifies a single component instance. It is distinct from the
// id of the entity owning the instance.
type InstanceId uint64

func (i InstanceId) String() string {
	return strconv.FormatUint(uint64(i), 10)
}
