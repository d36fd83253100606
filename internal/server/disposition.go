package server

import "strings"

// dispositionSafe is the exact byte set preserved by the filename
// percent-encoding; everything else becomes %HH.
const dispositionSafe = "ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"abcdefghijklmnopqrstuvwxyz" +
	"0123456789" +
	"-_.!~*'()"

const hexDigits = "0123456789ABCDEF"

// encodeTitle percent-encodes an article title for the Content-Disposition
// filename parameters.
func encodeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for i := 0; i < len(title); i++ {
		c := title[i]
		if strings.IndexByte(dispositionSafe, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0xf])
	}
	return b.String()
}
