package syncer

// EventType enumerates emitted sync events.
type EventType string

const (
	EventFolderStart    EventType = "folder_start"
	EventFolderProgress EventType = "folder_progress"
	EventFolderSkipped  EventType = "folder_skipped"
	EventFolderDone     EventType = "folder_done"
)

// Event carries progress about a folder.
type Event struct {
	Type   EventType
	Folder string
	// Total is the number of source messages, Done how many were decided.
	Total int
	Done  int
	// Stats is set on EventFolderDone.
	Stats *FolderStats
}
