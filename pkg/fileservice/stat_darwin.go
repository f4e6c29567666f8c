//go:build darwin

package fileservice

import "golang.org/x/sys/unix"

// statTimes extracts access, modification, and change times in Unix
// seconds.
func statTimes(st *unix.Stat_t) (atime, mtime, ctime int64) {
	return st.Atimespec.Sec, st.Mtimespec.Sec, st.Ctimespec.Sec
}
