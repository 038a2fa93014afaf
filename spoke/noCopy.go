package spoke

// noCopy can be embedded to provide "go vet" linting
// when a type must not be copied, such as a Storage or a Query.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
