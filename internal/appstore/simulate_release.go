//go:build !devsim

package appstore

// simulatedResult is compiled out of release builds: a network failure during
// verification always surfaces to the caller as *NetworkError.
func simulatedResult(env Environment) *VerificationResult {
	return nil
}
