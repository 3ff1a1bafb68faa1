package graph

import "fmt"

// Drive addresses one watched folder inside one drive.
type Drive struct {
	baseURL  string
	driveID  string
	folderID string
}

// NewDrive creates a Drive addressing folderID within driveID against the
// public Graph endpoint.
func NewDrive(driveID, folderID string) Drive {
	return Drive{baseURL: DefaultBaseURL, driveID: driveID, folderID: folderID}
}

// WithBaseURL returns a copy of the Drive pointed at an alternate endpoint.
// Used by tests against a local server.
func (d Drive) WithBaseURL(baseURL string) Drive {
	d.baseURL = baseURL
	return d
}

// ChildrenURL lists the folder's current contents (single full pass).
func (d Drive) ChildrenURL() string {
	return fmt.Sprintf("%s/drives/%s/items/%s/children?$top=999", d.baseURL, d.driveID, d.folderID)
}

// DeltaURL starts a delta traversal from the folder root.
func (d Drive) DeltaURL() string {
	return fmt.Sprintf("%s/drives/%s/items/%s/delta", d.baseURL, d.driveID, d.folderID)
}

// ContentRef returns the content download reference for an item. It is
// plain serializable data; retrieval happens through the Downloader.
func (d Drive) ContentRef(itemID string) string {
	return fmt.Sprintf("%s/drives/%s/items/%s/content", d.baseURL, d.driveID, itemID)
}
