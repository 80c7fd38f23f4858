/*
Package frame implements the wire unit exchanged with the station MCU.

# Wire Format

Every frame is delimited by a two byte start marker and a two byte end marker:

	FF FF | command (1) | length (1) | payload (length bytes) | FE FE

The total size is always 6 + length bytes. A frame with an empty payload
(FF FF cmd 00 FE FE) is a short frame; the MCU uses it for boot and status
signaling. All multi-byte payload fields are big-endian 4-byte integers.

# Extraction

Bytes read from the serial line arrive in arbitrary chunks and may carry
line noise or false markers. Extract scans an accumulating buffer for the
next well-formed frame. It never guesses: the result is a frame, a request
for more bytes, or ErrMultipleFrames when the buffer holds two independent
frames at once.
*/
package frame
