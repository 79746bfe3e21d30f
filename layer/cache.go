package layer

// Cache is the opaque per-call state a Layer keeps between Forward and Backward or JVP.
// A cache belongs to a single batch and must not be shared across goroutines.
type Cache interface{}
