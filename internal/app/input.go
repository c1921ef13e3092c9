package app

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/relayhist/internal/errors"
	"github.com/xtxerr/relayhist/internal/status"
)

// ReadObservations reads one observation per line:
//
//	family entity start end field...
//
// start and end are Unix milliseconds or RFC 3339 timestamps. Blank
// lines and lines starting with '#' are ignored. Lines that cannot be
// split into an observation are logged and skipped; payload fields are
// left for status.ParseObservation to check.
func ReadObservations(r io.Reader, log *slog.Logger) ([]status.RawObservation, int, error) {
	var (
		out     []status.RawObservation
		skipped int
		lineNo  int
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		raw, err := parseLine(line)
		if err != nil {
			skipped++
			log.Warn("skipping observation line", "line", lineNo, "error", err)
			continue
		}
		out = append(out, raw)
	}
	if err := sc.Err(); err != nil {
		return out, skipped, fmt.Errorf("read observations: %w", err)
	}
	return out, skipped, nil
}

func parseLine(line string) (status.RawObservation, error) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return status.RawObservation{}, errors.NewMalformed("line", line, "expected family, entity, start and end")
	}

	start, err := parseTime(fields[2])
	if err != nil {
		return status.RawObservation{}, err
	}
	end, err := parseTime(fields[3])
	if err != nil {
		return status.RawObservation{}, err
	}

	return status.RawObservation{
		Family: fields[0],
		Entity: fields[1],
		Start:  start,
		End:    end,
		Fields: fields[4:],
	}, nil
}

func parseTime(s string) (int64, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, errors.NewMalformed("time", s, "not milliseconds or RFC 3339")
	}
	return t.UnixMilli(), nil
}
