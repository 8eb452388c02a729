// Package password implements credential hashing with argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so
// the caller can re-hash on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing, verification and the registration
// password policy. Storage of hashes belongs to the identity package.
// Plaintext passwords are never logged.
package password
