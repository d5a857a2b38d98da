package writer

import (
	"encoding/json"
	"io"

	"github.com/insightdelivered/statement-reconciler/internal/models"
)

// Export is the payload handed to accounting integrations.
type Export struct {
	Metadata     models.StatementMetadata `json:"metadata"`
	Summary      models.Summary           `json:"summary"`
	Transactions []models.Transaction     `json:"transactions"`
	// Fingerprints holds Transaction.Hash for each transaction, in order, so
	// importers can skip rows they already hold.
	Fingerprints []string                 `json:"fingerprints"`
}

// NewExport builds the payload from the verified subset of txns.
func NewExport(meta models.StatementMetadata, txns []models.Transaction) Export {
	verified := Verified(txns)
	fingerprints := make([]string, len(verified))
	for i := range verified {
		fingerprints[i] = verified[i].Hash()
	}
	return Export{
		Metadata:     meta,
		Summary:      models.Summarize(verified),
		Transactions: verified,
		Fingerprints: fingerprints,
	}
}

// WriteJSON encodes the export of txns as indented JSON.
func WriteJSON(out io.Writer, meta models.StatementMetadata, txns []models.Transaction) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(NewExport(meta, txns))
}
