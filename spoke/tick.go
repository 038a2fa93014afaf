package spoke

// Tick counts the cleanup passes of a Storage. Mutations recorded during a tick
// are visible until the Cleanup that ends it.
type Tick uint64

const NoTick Tick = 0
