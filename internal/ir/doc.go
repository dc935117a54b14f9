// Package ir provides the value types, canonical serialization and
// content hashing shared by every other skillwave package.
//
// This package contains no scheduling logic. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers (floats break determinism)
//   - NO null in hashed payloads
//   - Content hashes are SHA-256 over RFC 8785 canonical JSON with a
//     versioned domain prefix
//   - Dependency hashes are combined in dependency-id order
package ir
