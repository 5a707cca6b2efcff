// Package events provides the append-only plan audit log and the in-process event bus.
package events

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Rishikoli/speedline-metro-glow/internal/model"
)

const (
	// Default maximum log file size (100MB)
	DefaultMaxLogSize = 100 * 1024 * 1024
	LogFileExtension  = ".jsonl"
	ArchiveDir        = "archive"
)

// Record is one line of the audit log: a plan audit entry tagged with its plan.
type Record struct {
	PlanID   string           `json:"plan_id"`
	Entry    model.AuditEntry `json:"entry"`
	Checksum string           `json:"checksum,omitempty"`
}

// AuditLogger appends plan audit entries to a JSONL file and rotates it into archive/ once it
// would grow past maxSize. Query and Summary read archived files as well as the live one.
type AuditLogger struct {
	mu              sync.Mutex
	file            *os.File
	currentSize     int64
	maxSize         int64
	logPath         string
	enableChecksum  bool
	rotationCounter int
	now             func() time.Time
}

func NewAuditLogger(logPath string, maxSize int64) (*AuditLogger, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxLogSize
	}
	if filepath.Ext(logPath) != LogFileExtension {
		return nil, fmt.Errorf("audit log %s must have a %s extension", logPath, LogFileExtension)
	}

	l := &AuditLogger{
		logPath: logPath,
		maxSize: maxSize,
		now:     time.Now,
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := l.openLogFile(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *AuditLogger) openLogFile() error {
	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	l.file = file
	l.currentSize = stat.Size()
	return nil
}

// Append validates entry and writes it as one record for planID.
func (l *AuditLogger) Append(planID string, entry model.AuditEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("audit append: %w", err)
	}
	return l.WriteRecord(&Record{PlanID: planID, Entry: entry.Clone()})
}

func (l *AuditLogger) WriteRecord(rec *Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit log %s is closed", l.logPath)
	}
	if l.enableChecksum {
		rec.Checksum = checksum(rec)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	data = append(data, '\n')

	if l.currentSize > 0 && l.currentSize+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("failed to rotate log: %w", err)
		}
	}

	n, err := l.file.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	l.currentSize += int64(n)
	return nil
}

func (l *AuditLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close current log file: %w", err)
	}

	archiveDir := filepath.Join(filepath.Dir(l.logPath), ArchiveDir)
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	l.rotationCounter++
	base := strings.TrimSuffix(filepath.Base(l.logPath), LogFileExtension)
	archiveName := fmt.Sprintf("%s.%s.%04d%s", base, l.now().Format("20060102_150405"), l.rotationCounter, LogFileExtension)
	if err := os.Rename(l.logPath, filepath.Join(archiveDir, archiveName)); err != nil {
		return fmt.Errorf("failed to archive log file: %w", err)
	}
	return l.openLogFile()
}

// checksum is a djb2 hash of the record serialised without its checksum.
func checksum(rec *Record) string {
	c := *rec
	c.Checksum = ""
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", simpleHash(data))
}

func simpleHash(data []byte) uint64 {
	var hash uint64 = 5381
	for _, b := range data {
		hash = ((hash << 5) + hash) + uint64(b)
	}
	return hash
}

func (l *AuditLogger) EnableChecksum(enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enableChecksum = enable
}

// VerifyLogIntegrity returns the number of records in the file and how many of them pass
// their checksum. Records without a checksum count as valid; malformed lines are skipped.
func VerifyLogIntegrity(logPath string) (int, int, error) {
	records, err := readRecords(logPath)
	if err != nil {
		return 0, 0, err
	}
	valid := 0
	for i := range records {
		want := records[i].Checksum
		if want == "" || checksum(&records[i]) == want {
			valid++
		}
	}
	return len(records), valid, nil
}

func readRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return records, nil
}

// logFiles lists archived logs oldest first, followed by the live log.
func (l *AuditLogger) logFiles() ([]string, error) {
	pattern := filepath.Join(filepath.Dir(l.logPath), ArchiveDir,
		strings.TrimSuffix(filepath.Base(l.logPath), LogFileExtension)+".*"+LogFileExtension)
	archived, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(archived)
	return append(archived, l.logPath), nil
}

func (l *AuditLogger) readAll() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := l.logFiles()
	if err != nil {
		return nil, err
	}
	var all []Record
	for _, path := range files {
		records, err := readRecords(path)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}
	return all, nil
}

// Filter selects audit records. Zero fields match everything.
type Filter struct {
	PlanID string
	Kind   model.AuditKind
	User   string
	From   time.Time
	To     time.Time
	Limit  int
}

func (f Filter) match(r Record) bool {
	switch {
	case f.PlanID != "" && r.PlanID != f.PlanID:
		return false
	case f.Kind != "" && r.Entry.Kind != f.Kind:
		return false
	case f.User != "" && r.Entry.User != f.User:
		return false
	case !f.From.IsZero() && r.Entry.Timestamp.Before(f.From):
		return false
	case !f.To.IsZero() && r.Entry.Timestamp.After(f.To):
		return false
	}
	return true
}

// Query returns matching records newest first, truncated to Limit when it is positive.
func (l *AuditLogger) Query(f Filter) ([]Record, error) {
	all, err := l.readAll()
	if err != nil {
		return nil, err
	}
	out := []Record{}
	for _, r := range all {
		if f.match(r) {
			out = append(out, r)
		}
	}
	// reversed first so records sharing a timestamp come out newest-written first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Entry.Timestamp.After(out[j].Entry.Timestamp) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

type Summary struct {
	Total           int                     `json:"total" yaml:"total"`
	ByKind          map[model.AuditKind]int `json:"by_kind" yaml:"by_kind"`
	ByUser          map[string]int          `json:"by_user" yaml:"by_user"`
	PlanGenerations int                     `json:"plan_generations" yaml:"plan_generations"`
	Overrides       int                     `json:"overrides" yaml:"overrides"`
	// OverrideRate is overrides per generated plan, 0 when no plan was generated.
	OverrideRate float64 `json:"override_rate" yaml:"override_rate"`
}

// Summary aggregates the records in [from, to]; zero bounds are open.
func (l *AuditLogger) Summary(from, to time.Time) (Summary, error) {
	records, err := l.Query(Filter{From: from, To: to})
	if err != nil {
		return Summary{}, err
	}
	s := Summary{
		Total:  len(records),
		ByKind: make(map[model.AuditKind]int),
		ByUser: make(map[string]int),
	}
	for _, r := range records {
		s.ByKind[r.Entry.Kind]++
		s.ByUser[r.Entry.User]++
	}
	s.PlanGenerations = s.ByKind[model.AuditPlanGenerated]
	s.Overrides = s.ByKind[model.AuditOverrideApplied]
	if s.PlanGenerations > 0 {
		s.OverrideRate = float64(s.Overrides) / float64(s.PlanGenerations)
	}
	return s, nil
}

type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

var csvHeader = []string{"timestamp", "plan_id", "kind", "user", "details", "trainset_id"}

// Export writes the records matching f to w as a JSON array or as CSV with a header row.
func (l *AuditLogger) Export(w io.Writer, format ExportFormat, f Filter) error {
	records, err := l.Query(f)
	if err != nil {
		return err
	}

	switch format {
	case ExportJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case ExportCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		for _, r := range records {
			trainset := ""
			if r.Entry.OverrideApplied != nil {
				trainset = r.Entry.OverrideApplied.TrainsetID
			}
			row := []string{
				r.Entry.Timestamp.UTC().Format(time.RFC3339),
				r.PlanID,
				string(r.Entry.Kind),
				r.Entry.User,
				r.Entry.Details,
				trainset,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unsupported export format %q (want json or csv)", format)
	}
}

func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (l *AuditLogger) Path() string {
	return l.logPath
}

func (l *AuditLogger) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentSize
}

// FormatRate renders an override rate the way the CLI prints it.
func FormatRate(rate float64) string {
	return strconv.FormatFloat(rate*100, 'f', 1, 64) + "%"
}
