package analyzer

import "errors"

// FailureKind classifies why an analysis could not produce a usable record.
type FailureKind int

const (
	// FailureTransport covers network and auth errors reaching the model;
	// the upstream message is surfaced close to verbatim.
	FailureTransport FailureKind = iota
	// FailureEmptyResponse means the model returned no text at all.
	FailureEmptyResponse
	// FailureInvalidResponse means the model text could not be parsed as the
	// expected structure; raw parser detail never reaches the user.
	FailureInvalidResponse
	// FailureInvalidDomain means the model flagged the image as not being
	// manga/anime/manhwa content.
	FailureInvalidDomain
)

// User-facing messages. The analysis surface speaks Spanish, matching the
// instruction prompt.
const (
	MsgEmptyResponse   = "No se generaron datos."
	MsgInvalidResponse = "Error interpretando la respuesta de la IA. Intenta de nuevo."
	MsgInvalidDomain   = "La imagen no parece ser contenido de Manga/Anime válido."
)

// AnalysisError is a typed analysis failure with a client-safe message.
type AnalysisError struct {
	Kind    FailureKind
	Message string
}

func (e *AnalysisError) Error() string {
	return e.Message
}

// FailureKindOf extracts the failure kind from an error, defaulting to
// transport for anything untyped.
func FailureKindOf(err error) FailureKind {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return FailureTransport
}
