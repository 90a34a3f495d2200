package analyses

// ExtractionKind tags the outcome of a text extraction.
type ExtractionKind int

const (
	Extracted ExtractionKind = iota
	Degraded
	Failed
)

func (k ExtractionKind) String() string {
	switch k {
	case Extracted:
		return "extracted"
	case Degraded:
		return "degraded"
	default:
		return "failed"
	}
}

// Extraction is the tagged result of Extractor.Extract.
// Degraded carries placeholder text plus the cause; Failed carries only the cause.
type Extraction struct {
	Kind  ExtractionKind
	Text  string
	Cause error
}

func NewExtracted(text string) Extraction {
	return Extraction{Kind: Extracted, Text: text}
}

func NewDegraded(placeholder string, cause error) Extraction {
	return Extraction{Kind: Degraded, Text: placeholder, Cause: cause}
}

func NewFailed(cause error) Extraction {
	return Extraction{Kind: Failed, Cause: cause}
}
