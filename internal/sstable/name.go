package sstable

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Name formats the blob name for the SSTable identified by (level, id),
// per the <level>-<id>.sst grammar.
func Name(level, id uint32) string {
	return strconv.FormatUint(uint64(level), 10) + "-" + strconv.FormatUint(uint64(id), 10) + ".sst"
}

// ParseName parses name against the grammar <level:u32>-<id:u32>.sst:
// locate the first '-', parse the prefix as level; locate the next '.',
// parse the span between as id; require the remaining suffix to equal
// ".sst". Any deviation is rejected.
func ParseName(name string) (level, id uint32, err error) {
	dash := strings.IndexByte(name, '-')
	if dash < 0 {
		return 0, 0, errors.Errorf("sstable: invalid name %q: missing '-'", name)
	}
	rest := name[dash+1:]
	dot := strings.IndexByte(rest, '.')
	if dot < 0 {
		return 0, 0, errors.Errorf("sstable: invalid name %q: missing '.'", name)
	}
	levelStr := name[:dash]
	idStr := rest[:dot]
	suffix := rest[dot:]

	if levelStr == "" || idStr == "" {
		return 0, 0, errors.Errorf("sstable: invalid name %q: empty level or id", name)
	}
	if suffix != ".sst" {
		return 0, 0, errors.Errorf("sstable: invalid name %q: suffix %q is not \".sst\"", name, suffix)
	}
	if !isAllDigits(levelStr) || !isAllDigits(idStr) {
		return 0, 0, errors.Errorf("sstable: invalid name %q: non-numeric field", name)
	}

	levelVal, err := strconv.ParseUint(levelStr, 10, 32)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "sstable: invalid name %q: level", name)
	}
	idVal, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "sstable: invalid name %q: id", name)
	}
	return uint32(levelVal), uint32(idVal), nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsSSTableName reports whether name ends in ".sst" (used to partition the
// storage namespace before name grammar validation at open).
func IsSSTableName(name string) bool {
	return strings.HasSuffix(name, ".sst")
}
