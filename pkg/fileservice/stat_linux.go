//go:build linux

package fileservice

import "golang.org/x/sys/unix"

// statTimes extracts access, modification, and change times in Unix
// seconds. The change time stands in for creation time, which Linux does
// not track in struct stat.
func statTimes(st *unix.Stat_t) (atime, mtime, ctime int64) {
	return st.Atim.Sec, st.Mtim.Sec, st.Ctim.Sec
}
