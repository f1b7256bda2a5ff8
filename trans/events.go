package trans

// Event names of the notifications an import can produce.
const (
	EventTranslationsUpdated = "translations.updated"
	EventApprovalNeeded      = "approvalNeeded"
)

// Event is a domain notification produced by a committed import. Events are
// returned to the caller, which decides how (and whether) to deliver them;
// delivery failures must never undo the committed import.
type Event interface {
	EventName() string
}

// TranslationsUpdated signals that the current translation changed for one
// or more translatables of a locale. Subscribers typically recompute
// progress statistics or refresh search indexes.
type TranslationsUpdated struct {
	LocaleID        string  `json:"locale"`
	TranslatableIDs []int64 `json:"translatableIDs"`
}

func (TranslationsUpdated) EventName() string { return EventTranslationsUpdated }

// ApprovalNeeded signals that an import left translations waiting for
// review. Subscribers typically notify the locale's reviewers.
type ApprovalNeeded struct {
	LocaleID string `json:"locale"`
	Count    int    `json:"count"`
}

func (ApprovalNeeded) EventName() string { return EventApprovalNeeded }
