package fat16

import (
	"encoding/binary"

	"github.com/tinykernel-go/tinykernel/vfs"
)

// diritem layout, byte-for-byte as the original diritem_t (32 bytes):
//
//	0:11   Name (8.3, space padded)
//	11     Attr
//	12     NTRes
//	13     CrtTimeTenth
//	14:16  CrtTime
//	16:18  CrtDate
//	18:20  LstAccDate
//	20:22  FstClusHI
//	22:24  WrtTime
//	24:26  WrtDate
//	26:28  FstClusLO
//	28:32  FileSize
const direntSize = 32

const (
	attrReadOnly = 0x01
	attrHidden   = 0x02
	attrSystem   = 0x04
	attrVolumeID = 0x08
	attrDir      = 0x10
	attrLongName = 0x0F

	nameFree = 0xE5
	nameEnd  = 0x00
)

func direntName(d []byte) []byte      { return d[0:11] }
func direntAttr(d []byte) byte        { return d[11] }
func direntSetAttr(d []byte, a byte)  { d[11] = a }
func direntFstClusHI(d []byte) uint16 { return binary.LittleEndian.Uint16(d[20:22]) }
func direntFstClusLO(d []byte) uint16 { return binary.LittleEndian.Uint16(d[26:28]) }
func direntSetFstClus(d []byte, cluster uint32) {
	binary.LittleEndian.PutUint16(d[20:22], uint16(cluster>>16))
	binary.LittleEndian.PutUint16(d[26:28], uint16(cluster&0xFFFF))
}
func direntSize32(d []byte) uint32        { return binary.LittleEndian.Uint32(d[28:32]) }
func direntSetSize(d []byte, size uint32) { binary.LittleEndian.PutUint32(d[28:32], size) }

// direntType maps DIR_Attr to a vfs.FileType, skipping volume labels,
// hidden/system entries and long-name fragments (diritem_get_type).
func direntType(d []byte) vfs.FileType {
	a := direntAttr(d)
	if a&(attrVolumeID|attrHidden|attrSystem) != 0 {
		return vfs.FileUnknown
	}
	if a&attrLongName == attrLongName {
		return vfs.FileUnknown
	}
	if a&attrDir != 0 {
		return vfs.FileDir
	}
	return vfs.FileNormal
}

// toSFN renders name into an 11-byte 8.3 short name: letters
// uppercased, the first dot moves the cursor to the extension field,
// everything else padded with spaces (to_sfn).
func toSFN(name string) [11]byte {
	var dest [11]byte
	for i := range dest {
		dest[i] = ' '
	}
	cur := 0
	for _, c := range []byte(name) {
		if cur >= 11 {
			break
		}
		switch {
		case c == '.':
			cur = 8
		default:
			if c >= 'a' && c <= 'z' {
				c = c - 'a' + 'A'
			}
			dest[cur] = c
			cur++
		}
	}
	return dest
}

func direntNameMatches(d []byte, name string) bool {
	sfn := toSFN(name)
	return string(direntName(d)) == string(sfn[:])
}

// direntDisplayName reverses toSFN for directory listings
// (diritem_get_name): trailing spaces in each half are dropped, and a
// bare "." is suppressed when there is no extension.
func direntDisplayName(d []byte) string {
	raw := direntName(d)
	out := make([]byte, 0, 12)
	extStart := -1
	for i := 0; i < 11; i++ {
		if raw[i] != ' ' {
			out = append(out, raw[i])
		}
		if i == 7 {
			extStart = len(out)
			out = append(out, '.')
		}
	}
	if extStart >= 0 && extStart == len(out)-1 {
		out = out[:extStart]
	}
	return string(out)
}

func direntInit(attr byte, name string) []byte {
	d := make([]byte, direntSize)
	sfn := toSFN(name)
	copy(d[0:11], sfn[:])
	direntSetAttr(d, attr)
	direntSetFstClus(d, clusterInvalid)
	return d
}
