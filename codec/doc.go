// Package codec implements the byte-exact encoding of wallet actions and
// secp256k1 verification blobs expected by the on-chain contracts.
//
// Layout rules:
//   - enums: one byte discriminant followed by the variant fields in order
//   - strings: u32 little-endian byte length followed by UTF-8 bytes
//   - u128: 16 bytes little-endian
//   - lists: u32 little-endian item count followed by the items
//
// There is no version tag. Changing a tag, a field order or a width breaks
// compatibility with deployed contracts.
package codec
