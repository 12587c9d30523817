package types

// SessionMeta identifies one page session: a single load of the embedded
// document, from startup until unload.
type SessionMeta struct {
	// SessionID is a unique identifier for this page session.
	SessionID string
	// URL is the document URL the controller is serving.
	URL string
	// Referrer is the embedding page's URL, when known.
	Referrer string
}
