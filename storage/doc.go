// Package storage holds the I/O adapters of the provisioner.
//
//   - IPFSStore adds ciphertext through an IPFS HTTP API and validates the
//     returned content identifier
//   - GatewayFetcher reads published content back through a public gateway
//     with bounded retries
//   - FileLedger writes the batch report as an indented JSON array, atomically
//     replacing any previous file
package storage
