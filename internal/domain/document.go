package domain

// Field names a derived value stored on a bill document.
type Field string

const (
	FieldDescription Field = "description"
	FieldPositives   Field = "positives"
	FieldNegatives   Field = "negatives"
	FieldDate        Field = "date"

	FieldTitle   = "title"
	FieldPDFURL  = "pdf_url"
	FieldText    = "text"
	FieldTextURL = "text_url"
)

// RequiredFields lists every derived field the enrichment pass fills in, in generation order.
var RequiredFields = []Field{FieldDescription, FieldPositives, FieldNegatives, FieldDate}

// Document is a bill record as held by the remote document store.
type Document struct {
	ID     string
	Fields map[string]any
}

// Has tests key presence only; an empty stored value still counts as present.
func (d Document) Has(field Field) bool {
	_, ok := d.Fields[string(field)]
	return ok
}

// Missing returns the required fields absent from the document.
func (d Document) Missing() []Field {
	var missing []Field
	for _, f := range RequiredFields {
		if !d.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// TextURL returns the locator of the document's backing text, if any.
func (d Document) TextURL() string {
	v, _ := d.Fields[FieldTextURL].(string)
	return v
}
