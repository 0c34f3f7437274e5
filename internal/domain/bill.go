package domain

// Unknown marks scraped rows whose title or document link could not be read.
const Unknown = "Unknown"

// Bill is a legislative document listed in a chamber catalog.
type Bill struct {
	Title   string `json:"title"`
	PDFURL  string `json:"pdf_url"`
	Text    string `json:"text,omitempty"`
	Chamber string `json:"chamber,omitempty"`
}

// Eligible reports whether the bill can ever enter the extraction stage.
func (b Bill) Eligible() bool {
	return b.Title != "" && b.Title != Unknown && b.PDFURL != Unknown
}

// Record converts the bill into its processed-log entry.
func (b Bill) Record() ProcessedRecord {
	return ProcessedRecord{Title: b.Title, PDFURL: b.PDFURL}
}

// ProcessedRecord is an append-only log entry for a bill whose extraction was attempted.
type ProcessedRecord struct {
	Title  string `json:"title"`
	PDFURL string `json:"pdf_url"`
}
