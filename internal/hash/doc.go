// Package hash provides the checksum used for persisted metadata.
//
// Projection blobs and S3 uploads are checksummed with CRC32-Castagnoli
// (CRC32C), which Go computes with hardware instructions where available:
//
//	checksum := hash.CRC32C(data)
//
// For streaming input:
//
//	h := hash.NewCRC32C()
//	h.Write(chunk1)
//	h.Write(chunk2)
//	checksum := h.Sum32()
package hash
