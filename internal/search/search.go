package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultCard ResultType = "card"
	ResultPost ResultType = "post"
	ResultFile ResultType = "file"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ProjectID int64      `json:"projectId"`
}

// Query describes a search request.
type Query struct {
	Text            string
	FilterType      ResultType // empty = all types
	FilterProjectID int64      // 0 = all projects
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// CardRecord is the data we index for a kanban card.
type CardRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	ProjectID int64  `json:"projectId"`
}

// PostRecord is the data we index for a project post.
type PostRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	ProjectID int64  `json:"projectId"`
}

// FileRecord is the data we index for a file's metadata.
type FileRecord struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	ProjectID int64  `json:"projectId"`
}
