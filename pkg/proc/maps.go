package proc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parseMaps parses the contents of a /proc/pid/maps file.
func parseMaps(rd io.Reader) ([]MemRegion, error) {
	var regions []MemRegion
	scan := bufio.NewScanner(rd)
	scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineno := 0
	for scan.Scan() {
		lineno++
		line := scan.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		region, err := parseMapsLine(lineno, line)
		if err != nil {
			return nil, err
		}
		regions = append(regions, region)
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	return regions, nil
}

func parseMapsLine(lineno int, in string) (r MemRegion, err error) {
	fields := strings.SplitN(in, " ", 6)
	if len(fields) < 5 {
		err = fmt.Errorf("malformed /proc/pid/maps on line %d: %q (wrong number of fields)", lineno, in)
		return
	}

	v := strings.Split(fields[0], "-")
	if len(v) != 2 {
		err = fmt.Errorf("malformed /proc/pid/maps on line %d: %q (bad first field)", lineno, in)
		return
	}
	r.Start, err = strconv.ParseUint(v[0], 16, 64)
	if err != nil {
		err = fmt.Errorf("malformed /proc/pid/maps on line %d: %q (%v)", lineno, in, err)
		return
	}
	r.End, err = strconv.ParseUint(v[1], 16, 64)
	if err != nil {
		err = fmt.Errorf("malformed /proc/pid/maps on line %d: %q (%v)", lineno, in, err)
		return
	}

	r.Perms = fields[1]
	if len(r.Perms) < 4 {
		err = fmt.Errorf("malformed /proc/pid/maps on line %d: %q (permissions column too short)", lineno, in)
		return
	}

	r.Offset, err = strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		err = fmt.Errorf("malformed /proc/pid/maps on line %d: %q (%v)", lineno, in, err)
		return
	}

	// fields[3] -> device, fields[4] -> inode
	if len(fields) == 6 {
		r.Path = strings.TrimLeft(fields[5], " ")
	}
	return r, nil
}
