package imaging

import (
	"encoding/binary"
	"fmt"
	"image"

	"github.com/koios/iconforge/pkg/models"
)

// LegacyIconSizes are the renditions embedded in favicon.ico, in directory order
var LegacyIconSizes = []int{16, 32, 48}

const (
	icoHeaderSize = 6
	icoEntrySize  = 16
	icoTypeIcon   = 1
	icoMaxSide    = 256
)

// IconEntry is one PNG payload of an .ico container
type IconEntry struct {
	Width  int
	Height int
	PNG    []byte
}

// EncodeLegacyContainer renders src at every LegacyIconSizes size with the
// contain policy and packs the PNGs into a single .ico file
func EncodeLegacyContainer(src []byte) ([]byte, error) {
	img, _, err := Decode(src)
	if err != nil {
		return nil, err
	}
	return EncodeLegacyContainerImage(img)
}

// EncodeLegacyContainerImage is EncodeLegacyContainer for an already decoded image
func EncodeLegacyContainerImage(img image.Image) ([]byte, error) {
	entries := make([]IconEntry, 0, len(LegacyIconSizes))
	for _, size := range LegacyIconSizes {
		data, err := ResizeImage(img, size, size, models.FitIcon)
		if err != nil {
			return nil, fmt.Errorf("failed to render %dx%d icon: %w", size, size, err)
		}
		entries = append(entries, IconEntry{Width: size, Height: size, PNG: data})
	}
	return PackIcon(entries)
}

// PackIcon lays out entries as an .ico file: a 6 byte header, one 16 byte
// directory entry per image, then the PNG payloads back to back. All
// integers are little-endian; a side of 256 is stored as 0.
func PackIcon(entries []IconEntry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("icon container needs at least one image")
	}
	if len(entries) > 0xFFFF {
		return nil, fmt.Errorf("too many images for icon container: %d", len(entries))
	}

	total := icoHeaderSize + icoEntrySize*len(entries)
	for _, e := range entries {
		if e.Width <= 0 || e.Width > icoMaxSide || e.Height <= 0 || e.Height > icoMaxSide {
			return nil, fmt.Errorf("icon size %dx%d out of range", e.Width, e.Height)
		}
		total += len(e.PNG)
	}

	buf := make([]byte, 0, total)

	buf = binary.LittleEndian.AppendUint16(buf, 0)
	buf = binary.LittleEndian.AppendUint16(buf, icoTypeIcon)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(entries)))

	offset := uint32(icoHeaderSize + icoEntrySize*len(entries))
	for _, e := range entries {
		buf = append(buf, icoDimension(e.Width), icoDimension(e.Height), 0, 0)
		buf = binary.LittleEndian.AppendUint16(buf, 1)  // color planes
		buf = binary.LittleEndian.AppendUint16(buf, 32) // bits per pixel
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e.PNG)))
		buf = binary.LittleEndian.AppendUint32(buf, offset)
		offset += uint32(len(e.PNG))
	}

	for _, e := range entries {
		buf = append(buf, e.PNG...)
	}

	return buf, nil
}

func icoDimension(side int) byte {
	if side == icoMaxSide {
		return 0
	}
	return byte(side)
}
