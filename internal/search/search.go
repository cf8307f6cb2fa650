package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultBlock    ResultType = "block"
	ResultProposal ResultType = "proposal"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type        ResultType `json:"type"`
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Snippet     string     `json:"snippet"`
	SectionType string     `json:"sectionType,omitempty"`
	ClientName  string     `json:"clientName,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text              string
	FilterType        ResultType // empty = all types
	FilterSectionType string
	Limit             int
	Offset            int
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

// BlockRecord is the data we index for a content block.
type BlockRecord struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	SectionType string   `json:"sectionType"`
	Tags        []string `json:"tags"`
}

// ProposalRecord is the data we index for a proposal.
type ProposalRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ClientName string `json:"clientName"`
	RFPContext string `json:"rfpContext"`
	Status     string `json:"status"`
}
