// Copyright (c) 2024 The AMS Project and its Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package journal

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/ams-project/ams/config"
)

// This is the AMS submission journal, which logs all submission activity.
// The journal is a table of events, one per operation performed against a
// study's metadata.

// a record describing one operation performed by the service
type Event struct {
	// UUID associated with the event
	Id uuid.UUID `json:"id"`
	// the study against which the operation was performed
	StudyId string `json:"study_id"`
	// the upload and analysis the operation touched (either may be empty)
	UploadId   string `json:"upload_id"`
	AnalysisId string `json:"analysis_id"`
	// the operation performed ("submit", "publish", "unpublish", "suppress",
	// or "register-schema")
	Operation string `json:"operation"`
	// outcome of the operation ("succeeded" or "failed")
	Outcome string `json:"outcome"`
	// a human-readable elaboration (validation errors, conflict details)
	Message string `json:"message"`
	// time at which the operation completed
	Time time.Time `json:"time"`
}

// initializes the AMS submission journal
func Init() error {
	if !IsOpen() {
		go journalProcess()
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

// saves and closes the submission journal (if it's been opened)
func Finalize() error {
	if IsOpen() {
		channels_.Input.Shutdown <- struct{}{}
		closeChannels()
	}
	return nil
}

// returns true if the journal is open for writing, false if not
func IsOpen() bool {
	if channels_.Open { // has Init() been called?
		channels_.Input.CheckIfOpen <- struct{}{}
		select {
		case isOpen := <-channels_.Output.IsOpen:
			return isOpen
		case <-time.After(1 * time.Second): // after a second, we assume the goroutine has crashed
			closeChannels()
			return false
		}
	}
	return false
}

// records a completed operation
// event: the record containing all information about the operation
func RecordEvent(event Event) error {
	switch event.Outcome {
	case "succeeded", "failed":
		// pass-through (see below)
	default:
		return &NewEventError{
			Id:      event.Id,
			Message: fmt.Sprintf("Invalid outcome: %s", event.Outcome),
		}
	}

	if !IsOpen() {
		return &NotOpenError{}
	}

	channels_.Input.CreateEvent <- event
	return <-channels_.Output.Error
}

// retrieves events for operations that completed within the time range with
// the given (inclusive) bounds
// start: the beginning of the time period of interest
// stop: the end of the time period of interest
func Events(start, stop time.Time) ([]Event, error) {
	if !IsOpen() {
		return nil, &NotOpenError{}
	}
	channels_.Input.FetchEvents <- TimeRange{Start: start, Stop: stop}
	var events []Event
	var err error
	select {
	case events = <-channels_.Output.Events:
		return events, err
	case err = <-channels_.Output.Error:
		return events, err
	}
}

//-----------
// Internals
//-----------

// The submission journal gets its own goroutine so it doesn't bring down the
// entire service if it crashes. Here we define "input" channels (main process
// -> goroutine) and "output" channels (goroutine -> main process) for passing
// data back and forth

type TimeRange struct {
	Start, Stop time.Time
}

var channels_ struct {
	Open  bool // true if channels are open, false if not
	Input struct {
		CreateEvent chan Event     // for recording new events
		CheckIfOpen chan struct{}  // for checking to see whether the database is open
		FetchEvents chan TimeRange // for fetching events within a time range
		Shutdown    chan struct{}  // for shutting down the database
	}

	Output struct {
		Events chan []Event // for returning events
		Error  chan error   // for returning errors
		IsOpen chan bool    // for answering queries about whether the database is open
	}
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	study_id    TEXT NOT NULL,
	upload_id   TEXT,
	analysis_id TEXT,
	operation   TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	message     TEXT,
	time        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS events_by_time ON events(time);
`

func journalProcess() {

	// open the database, creating the schema if necessary
	dbPath := filepath.Join(config.Service.DataDirectory, "submission_journal.db")
	conn, err := sqlite.OpenConn(dbPath,
		sqlite.OpenReadWrite|sqlite.OpenCreate|sqlite.OpenWAL)
	if err != nil {
		channels_.Output.Error <- &CantOpenError{
			Message: err.Error(),
		}
		return
	}
	if err := sqlitex.ExecuteScript(conn, journalSchema, nil); err != nil {
		channels_.Output.Error <- &CantOpenError{
			Message: err.Error(),
		}
		return
	}

	openChannels()

	// handle requests
	running := true
	for running {
		select {

		case <-channels_.Input.CheckIfOpen:
			channels_.Output.IsOpen <- true // always true if this goroutine is running!

		case event := <-channels_.Input.CreateEvent:
			err := createEvent(conn, event)
			channels_.Output.Error <- err

		case timeRange := <-channels_.Input.FetchEvents:
			events, err := fetchEvents(conn, timeRange.Start, timeRange.Stop)
			if err != nil {
				channels_.Output.Error <- err
			} else {
				channels_.Output.Events <- events
			}

		case <-channels_.Input.Shutdown:
			err := conn.Close()
			if err != nil {
				channels_.Output.Error <- &CantCloseError{
					Message: err.Error(),
				}
			}
			running = false
		}
	}
}

func openChannels() {
	channels_.Open = true
	channels_.Input.CreateEvent = make(chan Event)
	channels_.Input.CheckIfOpen = make(chan struct{})
	channels_.Input.FetchEvents = make(chan TimeRange)
	channels_.Input.Shutdown = make(chan struct{})
	channels_.Output.Events = make(chan []Event)
	channels_.Output.Error = make(chan error)
	channels_.Output.IsOpen = make(chan bool)
}

func closeChannels() {
	channels_.Open = false
	close(channels_.Input.CreateEvent)
	close(channels_.Input.CheckIfOpen)
	close(channels_.Input.FetchEvents)
	close(channels_.Input.Shutdown)
	close(channels_.Output.Events)
	close(channels_.Output.Error)
	close(channels_.Output.IsOpen)
}

func createEvent(conn *sqlite.Conn, event Event) error {
	if event.Id == uuid.Nil {
		event.Id = uuid.New()
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	err := sqlitex.Execute(conn,
		`INSERT INTO events (id, study_id, upload_id, analysis_id, operation, outcome, message, time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{event.Id.String(), event.StudyId, event.UploadId,
				event.AnalysisId, event.Operation, event.Outcome, event.Message,
				event.Time.UTC().Format(time.RFC3339)},
		})
	if err != nil {
		return &NewEventError{Id: event.Id, Message: err.Error()}
	}
	return nil
}

func fetchEvents(conn *sqlite.Conn, start, stop time.Time) ([]Event, error) {
	events := make([]Event, 0)
	err := sqlitex.Execute(conn,
		`SELECT id, study_id, upload_id, analysis_id, operation, outcome, message, time
		 FROM events WHERE time >= ? AND time <= ? ORDER BY time`,
		&sqlitex.ExecOptions{
			Args: []any{start.UTC().Format(time.RFC3339),
				stop.UTC().Format(time.RFC3339)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var event Event
				event.Id, _ = uuid.Parse(stmt.ColumnText(0))
				event.StudyId = stmt.ColumnText(1)
				event.UploadId = stmt.ColumnText(2)
				event.AnalysisId = stmt.ColumnText(3)
				event.Operation = stmt.ColumnText(4)
				event.Outcome = stmt.ColumnText(5)
				event.Message = stmt.ColumnText(6)
				event.Time, _ = time.Parse(time.RFC3339, stmt.ColumnText(7))
				events = append(events, event)
				return nil
			},
		})
	if err != nil {
		return nil, err
	}
	return events, nil
}
