package studiosdk

// FileNode is one node of a remote plugin or library tree. Folders carry
// a nil MimeType and may have children.
type FileNode struct {
	Path     string      `json:"path"`
	Name     string      `json:"name"`
	MimeType *string     `json:"mimeType"`
	Size     int64       `json:"size"`
	Children []*FileNode `json:"children,omitempty"`
}

func (n *FileNode) IsFolder() bool {
	return n.MimeType == nil
}
