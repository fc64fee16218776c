package symstore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// HistoryFile is the location of the transaction log relative to the
// symbol server root.
const HistoryFile = "000Admin/history.txt"

// Kind identifies the transaction type of a history record.
type Kind int

const (
	// KindAdd is a symbol publication transaction.
	KindAdd Kind = iota
	// KindDelete is a removal of an earlier add transaction.
	KindDelete
)

// String returns the operation name as it appears in the log.
func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "add"
	case KindDelete:
		return "del"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Record is one parsed history transaction.
//
// Timestamp and Tag are only set for KindAdd; DeletedID only for KindDelete.
type Record struct {
	Kind      Kind
	ID        string
	Timestamp time.Time
	Tag       string
	DeletedID string

	// Line is the 1-based line number in the source log.
	Line int
}

// LineError reports a history line that could not be parsed.
type LineError struct {
	Line    int
	Text    string
	Message string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("history line %d: %s: %q", e.Line, e.Message, e.Text)
}

const (
	addFieldCount    = 6
	deleteFieldCount = 3
	dateLayout       = "1/2/2006 15:04:05"
)

// ParseHistory scans r and returns every well-formed record in file order.
//
// Malformed lines are returned as *LineError values in lineErrs and do not
// stop the scan. The error return is reserved for read failures.
func ParseHistory(r io.Reader) (records []Record, lineErrs []*LineError, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(text) == "" {
			continue
		}

		rec, lineErr := parseLine(lineNo, text)
		if lineErr != nil {
			lineErrs = append(lineErrs, lineErr)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, lineErrs, fmt.Errorf("read history: %w", err)
	}
	return records, lineErrs, nil
}

// ReadHistory parses the history log of the symbol server rooted at server.
// A missing log means nothing has been published yet and yields no records.
func ReadHistory(server string) ([]Record, []*LineError, error) {
	path := filepath.Join(server, filepath.FromSlash(HistoryFile))
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	return ParseHistory(f)
}

func parseLine(lineNo int, text string) (Record, *LineError) {
	fields := strings.Split(text, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	fail := func(msg string) (Record, *LineError) {
		return Record{}, &LineError{Line: lineNo, Text: text, Message: msg}
	}

	if len(fields) < 2 {
		return fail("missing operation field")
	}

	id := fields[0]
	if id == "" {
		return fail("empty transaction id")
	}

	op := strings.ToLower(fields[1])
	switch {
	case strings.HasPrefix(op, "add"):
		if len(fields) < addFieldCount {
			return fail(fmt.Sprintf("add needs %d fields, got %d", addFieldCount, len(fields)))
		}
		ts, err := parseTimestamp(fields[3], fields[4])
		if err != nil {
			return fail(err.Error())
		}
		return Record{
			Kind:      KindAdd,
			ID:        id,
			Timestamp: ts,
			Tag:       strings.Trim(fields[5], `"`),
			Line:      lineNo,
		}, nil

	case strings.HasPrefix(op, "del"):
		if len(fields) < deleteFieldCount {
			return fail(fmt.Sprintf("del needs %d fields, got %d", deleteFieldCount, len(fields)))
		}
		if fields[2] == "" {
			return fail("empty deleted id")
		}
		return Record{
			Kind:      KindDelete,
			ID:        id,
			DeletedID: fields[2],
			Line:      lineNo,
		}, nil

	default:
		return fail(fmt.Sprintf("unknown operation %q", fields[1]))
	}
}

// parseTimestamp reads MM/DD/YYYY and HH:MM:SS fields as UTC.
func parseTimestamp(date, clock string) (time.Time, error) {
	parts := strings.Split(date, "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("bad date %q", date)
	}
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err != nil {
			return time.Time{}, fmt.Errorf("bad date %q", date)
		}
	}

	ts, err := time.ParseInLocation(dateLayout, date+" "+clock, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q %q", date, clock)
	}
	return ts, nil
}
