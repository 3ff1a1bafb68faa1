// Package graph wraps the Microsoft Graph drive API surface the watcher
// needs: bearer credential acquisition, paginated listing/delta fetches, and
// atomic content download.
package graph

import "encoding/json"

// DefaultBaseURL is the Microsoft Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// ItemDescriptor is one drive item as returned by listing and delta pages.
// Absence of the file facet means the entry is not a file (a folder, a
// deleted marker) and is filtered out by the change feed.
type ItemDescriptor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	ETag string `json:"eTag"`

	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file,omitempty"`

	FileSystemInfo struct {
		LastModifiedDateTime string `json:"lastModifiedDateTime"`
	} `json:"fileSystemInfo"`
}

// IsFile reports whether the descriptor carries the file facet.
func (d *ItemDescriptor) IsFile() bool {
	return d.File != nil
}

// Page is one decoded page of a listing or delta traversal.
// NextCursor, when set, continues the same pass; TerminalCursor, when set,
// is the resume token to persist once the whole pass has exhausted.
type Page struct {
	Items []ItemDescriptor

	// NextCursor is the @odata.nextLink, empty on the last page.
	NextCursor string

	// TerminalCursor is the @odata.deltaLink, usually present only on the
	// last page of a pass.
	TerminalCursor string
}

// pageEnvelope mirrors the Graph JSON wire format.
type pageEnvelope struct {
	Value     []ItemDescriptor `json:"value"`
	NextLink  string           `json:"@odata.nextLink"`
	DeltaLink string           `json:"@odata.deltaLink"`
}

func decodePage(data []byte) (Page, error) {
	var env pageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Page{}, err
	}
	return Page{
		Items:          env.Value,
		NextCursor:     env.NextLink,
		TerminalCursor: env.DeltaLink,
	}, nil
}
