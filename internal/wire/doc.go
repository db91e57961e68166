// Package wire implements the binary protocol spoken between rdesktopd and a
// remote viewer.
//
// Every packet is framed as a little-endian uint64 tag, a little-endian uint64
// declared payload length, and the payload. There are four packet kinds:
//
//	tag 0 Handshake     api revision (u64) + accepted (1 byte)   9 bytes
//	tag 1 DesktopList   count (u64) + count x (id u64, w i32, h i32)
//	tag 2 SwitchSource  new source id (u64)                       8 bytes
//	tag 3 End           empty                                     0 bytes
//
// Fixed-size kinds reject any declared length other than their canonical
// size. DesktopList ignores the declared length and instead requires the
// payload to be exactly 8 + count*16 bytes. All fields are written one by one;
// no buffer is ever reinterpreted as a struct.
package wire
