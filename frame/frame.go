// Package frame holds the client frames captured from the original network
// trace (four client -> server transmissions towards 54.233.229.27:4000).
package frame

import "encoding/hex"

var capturedHex = []string{
	// first 259-byte client payload
	"810102112ebbbf4da8e5526f6b8fc4066c2e8c8d461596e9fd8efd331e053c190aedc9f91742042415a0786cf6fd351caaeb914e1d38b7c44ed60c58e766c2049486013aa618caee023039ef1c73d0e96a67440258b78467c82b563d7e65956a6a7335093e10016804ec390a7adb10232f0e9324911a064ac250ad18bdbbfe6b7394db6ada6aade935fcb9c08acb61a316d64b0cc86420ae1c90b6de1a1a7548217ff772114bbf2405d21559c1f7a42cf88812aae3f8c103ade3eb5327fca5df6369087351c4fe04f5cd9329317b08b210c2743a42b58066326b0a8aac1cd659b8cd0f66e3edd8fca89a85a451a4dee940e469cd60c82c42a29a86fae580452b512e02",
	// second 259-byte client payload
	"8101022a0e27b678720d74cda3efdd5675a320f72deb1e39e2e234163b6b9a19292350ad99bda91f648d83601eb1c0229e87e56c8e7e84afba01f9dd4dcc49e47c3d59789cfe7f41c41aafc91226fa16fae8edd9b1d0866505cf1bf465e6cce81bcf6c8f505278621f3325d87d72325da7dbb3e8a990119525157ca918056d80805ad58fb8640c0688bf72208ec214163859646032693942401ed84c25e6b5ae7c081e05a314786611bc2faa3818ede29d5b20dc3fdcaf8e279885e04f96f1494175409a98eb34c4e860c6b2b86aaaa13662e6eabedeb846daadc82519374aeb5857da6c350f0158935a85e74af8ad51240a112b5171f7ea8940710e531dc0010a3817",
	// 6-byte follow-up
	"0545e1a91361",
	// 5-byte follow-up
	"0442eb5986",
}

var captured [][]byte

func init() {
	captured = make([][]byte, len(capturedHex))
	for i, s := range capturedHex {
		b, err := hex.DecodeString(s)
		if err != nil {
			panic("frame: bad captured frame " + s)
		}
		captured[i] = b
	}
}

// Captured returns a copy of the captured frames in capture order.
func Captured() [][]byte {
	res := make([][]byte, len(captured))
	for i, b := range captured {
		res[i] = append([]byte(nil), b...)
	}
	return res
}

// Count is the number of captured frames.
func Count() int {
	return len(captured)
}

// TotalSize is the sum of all captured frame lengths.
func TotalSize() int {
	n := 0
	for _, b := range captured {
		n += len(b)
	}
	return n
}
