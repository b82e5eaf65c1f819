package linkproc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// eventLog records cross-collaborator events in order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// fakeSheet is an in-memory SheetService that applies writes to its grid.
type fakeSheet struct {
	mu   sync.Mutex
	grid Grid
	log  *eventLog

	failCell  error
	failValue error
	failNote  int // number of WriteNote calls that fail before succeeding; -1 always
	noteCalls int
	cellCalls int
}

func newFakeSheet(values [][]string) *fakeSheet {
	return &fakeSheet{grid: Grid{Values: values}}
}

func (s *fakeSheet) setRich(row, col int, rc *RichCell) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(row, col)
	s.grid.Rich[row][col] = rc
}

func (s *fakeSheet) ensure(row, col int) {
	for len(s.grid.Values) <= row {
		s.grid.Values = append(s.grid.Values, nil)
	}
	for len(s.grid.Values[row]) <= col {
		s.grid.Values[row] = append(s.grid.Values[row], "")
	}
	for len(s.grid.Rich) <= row {
		s.grid.Rich = append(s.grid.Rich, nil)
	}
	for len(s.grid.Rich[row]) <= col {
		s.grid.Rich[row] = append(s.grid.Rich[row], nil)
	}
}

func (s *fakeSheet) cell(row, col int) (string, RichCell) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(row, col)
	rc := s.grid.Rich[row][col]
	if rc == nil {
		rc = &RichCell{}
	}
	return s.grid.Values[row][col], *rc
}

func (s *fakeSheet) ReadGrid(_ context.Context, _ SheetRef) (*Grid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := Grid{Values: make([][]string, len(s.grid.Values)), Rich: make([][]*RichCell, len(s.grid.Rich))}
	for i, row := range s.grid.Values {
		g.Values[i] = append([]string(nil), row...)
	}
	for i, row := range s.grid.Rich {
		g.Rich[i] = make([]*RichCell, len(row))
		for j, rc := range row {
			if rc != nil {
				cp := *rc
				g.Rich[i][j] = &cp
			}
		}
	}
	return &g, nil
}

func (s *fakeSheet) WriteCell(_ context.Context, _ SheetRef, u CellUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cellCalls++
	if s.failCell != nil {
		return s.failCell
	}
	s.ensure(u.Row, u.Col)
	s.grid.Values[u.Row][u.Col] = u.Text
	s.grid.Rich[u.Row][u.Col] = &RichCell{Hyperlink: u.URL, Note: u.Note}
	s.log.add("write %s", CellName(u.Row, u.Col))
	return nil
}

func (s *fakeSheet) WriteValue(_ context.Context, _ SheetRef, row, col int, text, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failValue != nil {
		return s.failValue
	}
	s.ensure(row, col)
	s.grid.Values[row][col] = text
	prev := s.grid.Rich[row][col]
	note := ""
	if prev != nil {
		note = prev.Note
	}
	s.grid.Rich[row][col] = &RichCell{Hyperlink: url, Note: note}
	s.log.add("value %s", CellName(row, col))
	return nil
}

func (s *fakeSheet) WriteNote(_ context.Context, _ SheetRef, row, col int, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noteCalls++
	if s.failNote < 0 || s.noteCalls <= s.failNote {
		return errors.New("note write rejected")
	}
	s.ensure(row, col)
	rc := s.grid.Rich[row][col]
	if rc == nil {
		rc = &RichCell{}
		s.grid.Rich[row][col] = rc
	}
	rc.Note = note
	return nil
}

// fakeMeta resolves ids from a map.
type fakeMeta map[string]*FileMeta

func (m fakeMeta) Metadata(_ context.Context, id string) (*FileMeta, error) {
	if fm, ok := m[id]; ok {
		return fm, nil
	}
	return nil, errors.New("file not found")
}

// fakeFolders serves a folder tree and records created folders.
type fakeFolders struct {
	mu        sync.Mutex
	children  map[string][]FileMeta
	created   []string
	failList  error
	failMkdir error
}

func (f *fakeFolders) ListChildren(_ context.Context, id string) ([]FileMeta, error) {
	if f.failList != nil {
		return nil, f.failList
	}
	return f.children[id], nil
}

func (f *fakeFolders) CreateFolder(_ context.Context, name, parent string) (*FileMeta, error) {
	if f.failMkdir != nil {
		return nil, f.failMkdir
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, parent+"/"+name)
	id := fmt.Sprintf("NEWFOLDER%d", len(f.created))
	return &FileMeta{ID: id, Name: name, MimeType: FolderMIME}, nil
}

// fakeCaller answers service calls with a per-service function.
type fakeCaller struct {
	mu    sync.Mutex
	calls map[string][]ServiceRequest
	fn    func(service string, req ServiceRequest) (*ServiceResponse, error)
	log   *eventLog
	delay time.Duration
}

func newFakeCaller(fn func(string, ServiceRequest) (*ServiceResponse, error)) *fakeCaller {
	return &fakeCaller{calls: make(map[string][]ServiceRequest), fn: fn}
}

func (c *fakeCaller) Call(_ context.Context, service string, payload []byte) ([]byte, error) {
	var req ServiceRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.calls[service] = append(c.calls[service], req)
	c.mu.Unlock()

	c.log.add("start %s", req.FileID)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	resp, err := c.fn(service, req)
	c.log.add("end %s", req.FileID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

func (c *fakeCaller) count(service string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls[service])
}

func (c *fakeCaller) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += len(v)
	}
	return n
}

// copyOK re-hosts every file as NEW_<id>.
func copyOK(_ string, req ServiceRequest) (*ServiceResponse, error) {
	return &ServiceResponse{Success: true, NewURL: FileViewURL("NEW_" + req.FileID), NewFileID: "NEW_" + req.FileID}, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }
