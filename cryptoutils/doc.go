// Package cryptoutils generates unit identities and encrypts dataset content.
//
// Identities are BIP39 mnemonics derived along the Ethereum path
// m/44'/60'/0'/0/0. Dataset content is encrypted with AES-256-CBC using a
// random IV prepended to the ciphertext; keys travel base64-encoded.
package cryptoutils
