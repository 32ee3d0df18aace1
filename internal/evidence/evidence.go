package evidence

// Kind discriminates where a record's content came from. It is fixed at
// construction time and never rewritten downstream.
type Kind string

const (
	KindForum             Kind = "forum"
	KindVideo             Kind = "video"
	KindGenericPage       Kind = "generic-page"
	KindSearchSnippet     Kind = "search-snippet"
	KindSyntheticFallback Kind = "synthetic-fallback"
)

// MaxBodyLen caps record bodies to bound downstream prompt size.
// Truncation is silent; it is not an error.
const MaxBodyLen = 10000

// Record is one normalized piece of external content used as model input.
type Record struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Kind  Kind   `json:"kind"`
}

// NewRecord builds a Record, truncating the body to MaxBodyLen.
func NewRecord(url, title, body string, kind Kind) Record {
	if len(body) > MaxBodyLen {
		body = body[:MaxBodyLen]
	}
	return Record{URL: url, Title: title, Body: body, Kind: kind}
}

// Review is one sampled customer review attached to a product snapshot.
type Review struct {
	Rating  float64 `json:"rating"`
	Title   string  `json:"title"`
	Excerpt string  `json:"excerpt"`
}

// Product is a catalog listing snapshot. Read-only input to report generation.
type Product struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Price       string   `json:"price"`
	Rating      float64  `json:"rating"`
	ReviewCount int      `json:"review_count"`
	Features    []string `json:"features"`
	Reviews     []Review `json:"reviews"`
}

// Bundle holds all gathered material for one research request. It is owned by
// a single orchestrator invocation and must not be mutated after finalization.
type Bundle struct {
	Records  []Record  `json:"records"`
	Products []Product `json:"products"`
}

// Add appends a record to the bundle.
func (b *Bundle) Add(records ...Record) {
	b.Records = append(b.Records, records...)
}

// Empty reports whether no evidence records were gathered. Products do not
// count: generation requires at least one textual record.
func (b *Bundle) Empty() bool {
	return len(b.Records) == 0
}
