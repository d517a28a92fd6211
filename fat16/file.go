package fat16

import (
	"github.com/tinykernel-go/tinykernel/status"
	"github.com/tinykernel-go/tinykernel/vfs"
)

// fileState is the fat16-private bookkeeping vfs.File.Data holds: the
// current cluster chain position plus the root directory slot the
// entry lives in (file_t's sblk/cblk/p_index fields).
type fileState struct {
	posField   uint32
	sblk, cblk uint32
	pIndex     int
}

// FS adapts a Volume to vfs.FileSystem.
type FS struct {
	Vol *Volume
}

func state(file *vfs.File) *fileState { return file.Data.(*fileState) }

// Open resolves name against the root directory, creating it if
// O_CREAT is set and truncating it if O_TRUNC is set (fatfs_open).
func (fs *FS) Open(name string, file *vfs.File) status.Status {
	v := fs.Vol
	var found []byte
	pIndex := -1

	for i := 0; uint32(i) < v.rootEntCnt; i++ {
		d, st := v.readDirEntry(i)
		if !st.Ok() {
			return st
		}
		switch d[0] {
		case nameEnd:
			pIndex = i
			goto scanned
		case nameFree:
			pIndex = i
			continue
		}
		if direntNameMatches(d, name) {
			found = d
			pIndex = i
			goto scanned
		}
	}
scanned:

	switch {
	case found != nil:
		st := &fileState{
			sblk: uint32(direntFstClusHI(found))<<16 | uint32(direntFstClusLO(found)),
		}
		st.cblk = st.sblk
		st.pIndex = pIndex
		file.Type = direntType(found)
		file.Size = direntSize32(found)
		file.Data = st

		if file.Mode&vfs.OTRUNC != 0 {
			v.clusterFreeChain(st.sblk)
			st.sblk, st.cblk = clusterInvalid, clusterInvalid
			file.Size = 0
		}
		return status.OK

	case file.Mode&vfs.OCREAT != 0 && pIndex >= 0:
		d := direntInit(0, name)
		if st := v.writeDirEntry(pIndex, d); !st.Ok() {
			return st
		}
		file.Type = direntType(d)
		file.Size = 0
		file.Data = &fileState{sblk: clusterInvalid, cblk: clusterInvalid, pIndex: pIndex}
		return status.OK

	default:
		return status.ENOENT
	}
}

// expand grows file by incrBytes worth of clusters (expand_file).
func (fs *FS) expand(file *vfs.File, incrBytes uint32) status.Status {
	v := fs.Vol
	st := state(file)

	var clusterCnt uint32
	if file.Size == 0 || file.Size%v.clusterByteSize == 0 {
		clusterCnt = up2(incrBytes, v.clusterByteSize) / v.clusterByteSize
	} else {
		cfree := v.clusterByteSize - (file.Size % v.clusterByteSize)
		if cfree > incrBytes {
			return status.OK
		}
		clusterCnt = up2(incrBytes-cfree, v.clusterByteSize) / v.clusterByteSize
		if clusterCnt == 0 {
			clusterCnt = 1
		}
	}

	start := v.clusterAllocFree(int(clusterCnt))
	if !clusterIsValid(start) {
		return status.ENOSPC
	}

	if !clusterIsValid(st.sblk) {
		st.cblk, st.sblk = start, start
	} else if s := v.clusterSetNext(st.cblk, start); !s.Ok() {
		return s
	}
	return status.OK
}

// moveFilePos advances a file's position by moveBytes, crossing into
// the next cluster (allocating one if expand is set and none exists)
// when the move would cross a cluster boundary (move_file_pos).
func (fs *FS) moveFilePos(file *vfs.File, moveBytes uint32, expand bool) status.Status {
	v := fs.Vol
	st := state(file)
	cOffset := st.pos() % v.clusterByteSize

	if cOffset+moveBytes >= v.clusterByteSize {
		next := v.clusterGetNext(st.cblk)
		if next == clusterInvalid && expand {
			if s := fs.expand(file, v.clusterByteSize); !s.Ok() {
				return s
			}
			next = v.clusterGetNext(st.cblk)
		}
		st.cblk = next
	}
	st.setPos(st.pos() + moveBytes)
	return status.OK
}

// pos/setPos keep the read/write cursor out of fileState's exported
// surface area (nothing outside this package should poke at it) while
// still being addressable from vfs.File, which has no position field
// of its own.
func (s *fileState) pos() uint32     { return s.posField }
func (s *fileState) setPos(p uint32) { s.posField = p }

// Read copies up to len(buf) bytes starting at the file's current
// position, sector by sector within the current cluster, never
// reading past file.Size (fatfs_read).
func (fs *FS) Read(file *vfs.File, buf []byte) (int, status.Status) {
	v := fs.Vol
	st := state(file)

	nbytes := uint32(len(buf))
	if st.pos()+nbytes > file.Size {
		nbytes = file.Size - st.pos()
	}

	total := uint32(0)
	sector := make([]byte, SectorSize)
	for nbytes > 0 {
		clusterOffset := st.pos() % v.clusterByteSize
		startSector := v.dataStart + (st.cblk-2)*v.secPerCluster
		secIdx := clusterOffset / v.bytesPerSec
		offInSec := clusterOffset % v.bytesPerSec

		if err := v.dev.ReadSector(startSector+secIdx, sector); err != nil {
			return int(total), status.EIO
		}
		n := v.bytesPerSec - offInSec
		if n > nbytes {
			n = nbytes
		}
		copy(buf[total:], sector[offInSec:offInSec+n])

		total += n
		nbytes -= n
		if s := fs.moveFilePos(file, n, false); !s.Ok() {
			return int(total), s
		}
	}
	return int(total), status.OK
}

// Write extends the file as needed and copies buf in, sector by
// sector within the current cluster (fatfs_write).
func (fs *FS) Write(file *vfs.File, buf []byte) (int, status.Status) {
	v := fs.Vol
	st := state(file)

	if st.pos()+uint32(len(buf)) > file.Size {
		if s := fs.expand(file, st.pos()+uint32(len(buf))-file.Size); !s.Ok() {
			return 0, s
		}
	}

	nbytes := uint32(len(buf))
	total := uint32(0)
	sector := make([]byte, SectorSize)
	for nbytes > 0 {
		clusterOffset := st.pos() % v.clusterByteSize
		startSector := v.dataStart + (st.cblk-2)*v.secPerCluster
		secIdx := clusterOffset / v.bytesPerSec
		offInSec := clusterOffset % v.bytesPerSec

		if err := v.dev.ReadSector(startSector+secIdx, sector); err != nil {
			return int(total), status.EIO
		}
		n := v.bytesPerSec - offInSec
		if n > nbytes {
			n = nbytes
		}
		copy(sector[offInSec:offInSec+n], buf[total:total+n])
		if err := v.dev.WriteSector(startSector+secIdx, sector); err != nil {
			return int(total), status.EIO
		}

		total += n
		nbytes -= n
		file.Size += n
		if s := fs.moveFilePos(file, n, true); !s.Ok() {
			return int(total), s
		}
	}
	return int(total), status.OK
}

// Close writes the final size and first-cluster fields back to the
// directory entry, unless the file was opened read-only (fatfs_close).
func (fs *FS) Close(file *vfs.File) {
	if file.Mode == vfs.ORDONLY {
		return
	}
	v := fs.Vol
	st := state(file)

	d, s := v.readDirEntry(st.pIndex)
	if !s.Ok() {
		return
	}
	direntSetSize(d, file.Size)
	direntSetFstClus(d, st.sblk)
	v.writeDirEntry(st.pIndex, d)
}

// Seek supports only forward seeks from the start of the file,
// matching fatfs_seek's dir!=0 rejection and its simple walk over the
// cluster chain.
func (fs *FS) Seek(file *vfs.File, offset int, whence int) (int, status.Status) {
	if whence != 0 {
		return 0, status.EINVAL
	}
	v := fs.Vol
	st := state(file)

	current := st.sblk
	curPos := uint32(0)
	toMove := uint32(offset)

	for toMove > 0 {
		cOffset := curPos % v.clusterByteSize
		move := toMove
		if cOffset+move < v.clusterByteSize {
			curPos += move
			break
		}
		move = v.clusterByteSize - cOffset
		curPos += move
		toMove -= move

		current = v.clusterGetNext(current)
		if !clusterIsValid(current) {
			return 0, status.EINVAL
		}
	}

	st.setPos(curPos)
	st.cblk = current
	return int(curPos), status.OK
}

// Stat is unimplemented, matching fatfs_stat's unconditional failure.
func (fs *FS) Stat(file *vfs.File, out *vfs.Stat) status.Status {
	return status.ENOSYS
}

// dirCursor is the Dir value returned by OpenDir: just the next
// directory index to examine.
type dirCursor struct {
	index int
}

func (fs *FS) OpenDir(name string) (vfs.Dir, status.Status) {
	return &dirCursor{}, status.OK
}

// ReadDir returns the next non-free, non-volume, non-long-name entry
// (fatfs_readdir).
func (fs *FS) ReadDir(d vfs.Dir) (vfs.DirEntry, status.Status) {
	v := fs.Vol
	cur := d.(*dirCursor)

	for uint32(cur.index) < v.rootEntCnt {
		item, s := v.readDirEntry(cur.index)
		if !s.Ok() {
			return vfs.DirEntry{}, s
		}
		if item[0] == nameEnd {
			break
		}
		if item[0] != nameFree {
			if t := direntType(item); t == vfs.FileNormal || t == vfs.FileDir {
				entry := vfs.DirEntry{
					Name: direntDisplayName(item),
					Type: t,
					Size: int64(direntSize32(item)),
				}
				cur.index++
				return entry, status.OK
			}
		}
		cur.index++
	}
	return vfs.DirEntry{}, status.ENOENT
}

func (fs *FS) CloseDir(d vfs.Dir) {}

func (fs *FS) Ioctl(file *vfs.File, cmd, arg0, arg1 int) (int, status.Status) {
	return 0, status.ENOSYS
}

// Unlink frees the file's cluster chain and zeroes its directory
// entry (fatfs_unlink).
func (fs *FS) Unlink(path string) status.Status {
	v := fs.Vol
	for i := 0; uint32(i) < v.rootEntCnt; i++ {
		item, s := v.readDirEntry(i)
		if !s.Ok() {
			return s
		}
		if item[0] == nameEnd {
			break
		}
		if item[0] == nameFree {
			continue
		}
		if direntNameMatches(item, path) {
			cluster := uint32(direntFstClusHI(item))<<16 | uint32(direntFstClusLO(item))
			v.clusterFreeChain(cluster)
			zero := make([]byte, direntSize)
			return v.writeDirEntry(i, zero)
		}
	}
	return status.ENOENT
}
