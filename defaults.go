package gorawrcreds

// DefaultOptions returns the recommended set of options for production use:
// credential panic recovery and request IDs.
func DefaultOptions() []Option {
	return []Option{
		WithCredentialRecovery(),
		WithRequestID(),
	}
}
