package store

import "fmt"

// Redis key pattern helpers
//
// All keys are namespaced by instance name to enable multiple engine
// instances to safely coexist on a single Redis server.
//
// Key pattern: resonance:{instance_name}:{entity}:{key}

// PrincipalKey returns the Redis key for a principal record hash.
// Pattern: resonance:{instance_name}:principal:{address}
func PrincipalKey(instanceName, address string) string {
	return fmt.Sprintf("resonance:%s:principal:%s", instanceName, address)
}

// PrincipalsKey returns the Redis key for the set of all known principal
// addresses.
// Pattern: resonance:{instance_name}:principals
func PrincipalsKey(instanceName string) string {
	return fmt.Sprintf("resonance:%s:principals", instanceName)
}

// StatusSetKey returns the Redis key for the set of principal addresses in a
// given credential status. The sweeps (retry, confirmation) drain these sets.
// Pattern: resonance:{instance_name}:status:{status}
func StatusSetKey(instanceName string, status CredentialStatus) string {
	return fmt.Sprintf("resonance:%s:status:%s", instanceName, status)
}
