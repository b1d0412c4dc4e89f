package dedupe

import "PaperWatcher/internal/domain"

// DeliveryKey identifies a work across cycles: its DOI when known, else source and identifier.
func DeliveryKey(w domain.CandidateWork) string {
	if doi := NormalizeDOI(w.DOI); doi != "" {
		return "doi:" + doi
	}
	return NormalizeIdentifier(w.Source) + ":" + NormalizeIdentifier(w.Identifier)
}
