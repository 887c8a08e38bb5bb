package pdf

import "image/color"

var testpdfGray = color.RGBA{0x80, 0x80, 0x80, 0xff}
