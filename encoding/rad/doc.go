// Package rad implements the binary layout of the RAD (reduced alignment
// data) format: the header, tag sections, chunk framing and per-record
// encoding that the collation core treats as an external library contract.
//
// Nothing in this package resolves barcodes or UMIs to anything biological;
// it only knows how to get their packed integer values on and off the wire.
package rad
